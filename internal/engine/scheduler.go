package engine

import (
	"github.com/agsys/lowapp/internal/queue"
	"github.com/agsys/lowapp/internal/telemetry"
)

// maxTransitions bounds the state changes a single event may cause
const maxTransitions = 16

// State of the protocol core
type State int

// States
const (
	StateRestart State = iota
	StateIdle
	StateCad
	StateRxing
	StateSkippingAck
	StateWaitSlotTxAck
	StateTxingAck
	StateTxing
	StateWaitBeforeListeningForAck
	StateRxingAck
)

var stateNames = [...]string{
	StateRestart:                   "restart",
	StateIdle:                      "idle",
	StateCad:                       "cad",
	StateRxing:                     "rxing",
	StateSkippingAck:               "skipping-ack",
	StateWaitSlotTxAck:             "wait-slot-tx-ack",
	StateTxingAck:                  "txing-ack",
	StateTxing:                     "txing",
	StateWaitBeforeListeningForAck: "wait-before-listening-for-ack",
	StateRxingAck:                  "rxing-ack",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// RunResult tells the caller how deep it may sleep until the next event
type RunResult int

const (
	SleepDeep    RunResult = iota // idle with nothing queued
	SleepShallow                  // waiting on a timer or CAD
	RadioTx                       // radio transmitting
	RadioRx                       // radio receiving
)

func (r RunResult) String() string {
	switch r {
	case SleepDeep:
		return "sleep-deep"
	case SleepShallow:
		return "sleep-shallow"
	case RadioTx:
		return "radio-tx"
	default:
		return "radio-rx"
	}
}

// Run processes queued events until none can be handled. Hot events are
// always served first; cold events only while the core is Idle, so host
// requests never interrupt a radio exchange.
func (c *Context) Run() RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		evt, ok := c.hot.Pop()
		if !ok {
			if c.state != StateIdle {
				return c.busyResult()
			}
			if evt, ok = c.cold.Pop(); !ok {
				return SleepDeep
			}
		}
		c.dispatch(evt)
	}
}

func (c *Context) busyResult() RunResult {
	switch c.state {
	case StateTxing, StateTxingAck:
		return RadioTx
	case StateRxing, StateRxingAck:
		return RadioRx
	default:
		return SleepShallow
	}
}

// dispatch hands evt to the current state and follows the resulting
// transitions, running exit then entry actions for each.
func (c *Context) dispatch(evt queue.Event) {
	c.log.Trace().Stringer("state", c.state).Stringer("event", evt.Kind).Msg("Dispatch")

	var next State
	if evt.Kind == queue.EventStateEnter {
		next = c.runEnter(c.state)
	} else {
		next = c.handle(evt)
	}

	for n := 0; next != c.state; n++ {
		if n == maxTransitions {
			c.faults++
			telemetry.Faults.Inc()
			c.log.Error().Err(ErrTransitionLoop).Stringer("state", next).Stringer("event", evt.Kind).Msg("Parking in idle")
			c.exit(c.state)
			c.state = StateIdle
			return
		}
		c.exit(c.state)
		c.state = next
		next = c.runEnter(next)
	}
}

func (c *Context) runEnter(s State) State {
	if c.enterHook != nil {
		return c.enterHook(s)
	}
	return c.enter(s)
}
