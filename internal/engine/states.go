package engine

import (
	"github.com/agsys/lowapp/internal/queue"
	"github.com/agsys/lowapp/internal/telemetry"
)

// enter runs the entry action of s and returns the state to move to,
// s itself to stay.
func (c *Context) enter(s State) State {
	telemetry.StateEntries.WithLabelValues(s.String()).Inc()
	c.log.Debug().Stringer("state", s).Msg("Enter state")

	switch s {
	case StateRestart:
		return StateIdle
	case StateIdle:
		return c.enterIdle()
	case StateCad:
		c.cadFlag.Store(false)
		c.radio.StartCAD()
	case StateRxing:
		c.radio.Receive(c.timing.RxStdGuard)
	case StateSkippingAck:
		c.timer.Start(AckSlotStart + AckSlotLength)
	case StateWaitSlotTxAck:
		c.timer.Start(AckSlotTx)
	case StateWaitBeforeListeningForAck:
		c.timer.Start(AckSlotStart)
	case StateRxingAck:
		c.listenForAck()
	}
	return s
}

// exit stops the state timeout of timed states
func (c *Context) exit(s State) {
	switch s {
	case StateSkippingAck, StateWaitSlotTxAck, StateWaitBeforeListeningForAck:
		c.timer.Stop()
	}
}

// handle routes an event to the current state
func (c *Context) handle(evt queue.Event) State {
	switch c.state {
	case StateIdle:
		return c.handleIdle(evt)
	case StateCad:
		if evt.Kind == queue.EventCadDone {
			if detected, _ := evt.Data.(bool); detected {
				return StateRxing
			}
			return StateIdle
		}
	case StateRxing:
		switch evt.Kind {
		case queue.EventRxMessage:
			p, _ := evt.Data.(queue.RxPayload)
			return c.receiveFrame(p)
		case queue.EventRxError, queue.EventRxTimeout, queue.EventTimeout:
			return StateIdle
		}
	case StateSkippingAck:
		if evt.Kind == queue.EventTimeout {
			return StateIdle
		}
	case StateWaitSlotTxAck:
		if evt.Kind == queue.EventTimeout {
			return c.sendAck()
		}
	case StateTxingAck:
		switch evt.Kind {
		case queue.EventTxDone, queue.EventTxTimeout, queue.EventTimeout:
			c.restoreStdTx()
			return StateIdle
		}
	case StateTxing:
		switch evt.Kind {
		case queue.EventTxDone:
			return c.txDone()
		case queue.EventTxTimeout, queue.EventTimeout:
			return c.txFailed()
		}
	case StateWaitBeforeListeningForAck:
		if evt.Kind == queue.EventTimeout {
			return StateRxingAck
		}
	case StateRxingAck:
		switch evt.Kind {
		case queue.EventRxMessage:
			p, _ := evt.Data.(queue.RxPayload)
			return c.ackReceived(p)
		case queue.EventRxError:
			return c.ackMissing("RXERROR")
		case queue.EventRxTimeout:
			return c.ackMissing("RXTIMEOUT")
		case queue.EventTimeout:
			return c.ackMissing("")
		}
	}

	c.log.Trace().Stringer("state", c.state).Stringer("event", evt.Kind).Msg("Event ignored")
	return c.state
}

// enterIdle serves the host: pending commands, pushed packets, then the
// next transmission. A CAD tick that fired while busy is honoured last.
func (c *Context) enterIdle() State {
	c.drainAT()
	if c.resetPending {
		return c.restart()
	}

	if c.opMode == ModePush && c.rx.Len() > 0 {
		c.respondRxPackets()
	}

	if next := c.requestTx(); next != StateIdle {
		return next
	}
	if c.cadFlag.Load() {
		return StateCad
	}
	return StateIdle
}

func (c *Context) handleIdle(evt queue.Event) State {
	switch evt.Kind {
	case queue.EventATCommand:
		c.drainAT()
		if c.resetPending {
			return c.restart()
		}
	case queue.EventTxRequest, queue.EventTxUnblock:
		return c.requestTx()
	case queue.EventCadTimeout:
		return StateCad
	}
	return StateIdle
}

// restart reinitialises the core after ATZ. The machine restarts from
// StateRestart through the queued enter event.
func (c *Context) restart() State {
	c.resetPending = false
	c.log.Info().Msg("Resetting node")
	c.initialise()
	return StateRestart
}
