package engine

import (
	"fmt"
	"strconv"

	"github.com/agsys/lowapp/internal/lora"
	"github.com/agsys/lowapp/internal/peer"
	"github.com/agsys/lowapp/internal/protocol"
	"github.com/agsys/lowapp/internal/queue"
	"github.com/agsys/lowapp/internal/storage"
	"github.com/agsys/lowapp/internal/telemetry"
)

// requestTx starts the next transmission if the node is allowed to send
func (c *Context) requestTx() State {
	if c.txBlocked.Load() {
		return StateIdle
	}
	if c.txFrameFilled {
		return c.tryTxFrame()
	}
	if c.tx.Len() > 0 {
		return c.tryTxFromQueue()
	}
	return StateIdle
}

// tryTxFromQueue builds the frame for the oldest queued message
func (c *Context) tryTxFromQueue() State {
	msg, ok := c.tx.Pop()
	if !ok {
		return StateIdle
	}

	dest := msg.Std.DestID
	msg.Std.SrcID = c.params.DeviceID
	msg.Std.TxSeq = c.peers.TxSeq(dest)

	frame, err := c.codec.BuildFrame(msg)
	if err != nil {
		telemetry.TxFailures.WithLabelValues("build").Inc()
		c.log.Error().Err(err).Uint8("dest", dest).Msg("Failed to build frame")
		c.respond("NOK TX")
		return StateIdle
	}

	c.txFrame = frame
	c.txFrameFilled = true
	c.lastDest = dest
	c.retry = 0
	return c.tryTxFrame()
}

// tryTxFrame sends the current frame if the channel is free. A busy
// channel costs one retry and sends the node listening, since someone
// else is talking.
func (c *Context) tryTxFrame() State {
	if c.radio.IsChannelFree(lora.ChannelFrequency(c.params.ChannelID)) {
		c.txBlocked.Store(true)
		c.radio.Send(c.txFrame)
		telemetry.FramesSent.WithLabelValues(protocol.TypeStandard.String()).Inc()
		c.log.Debug().Uint8("dest", c.lastDest).Int("len", len(c.txFrame)).Msg("Frame sent")
		return StateTxing
	}

	c.retry++
	telemetry.TxRetries.Inc()
	if c.retry < MaxTxRetry {
		c.txBlocked.Store(true)
		c.unblk.Start(c.timing.BackoffDelay(c.rng))
		c.respond(fmt.Sprintf(`NOK TX {"retry":"%d"}`, c.retry))
		c.report(storage.OutcomeChannel, strconv.Itoa(c.retry))
	} else {
		c.txFrameFilled = false
		telemetry.TxFailures.WithLabelValues("channel-busy").Inc()
		c.respond(`NOK TX {"retry":"MAX"}`)
		c.report(storage.OutcomeFailed, "channel busy")
	}
	return StateRxing
}

// setUnblockTimer keeps the node off the channel for a preamble plus a
// random delay
func (c *Context) setUnblockTimer() {
	c.txBlocked.Store(true)
	c.unblk.Start(c.timing.UnblockDelay(c.rng))
}

func (c *Context) txDone() State {
	c.peers.TxDone(c.lastDest)
	c.txFrameFilled = false

	if c.lastDest == protocol.BroadcastID {
		c.setUnblockTimer()
		c.report(storage.OutcomeBroadcast, "")
		return StateIdle
	}
	c.txBlocked.Store(true)
	return StateWaitBeforeListeningForAck
}

func (c *Context) txFailed() State {
	c.setUnblockTimer()
	c.retry++
	telemetry.TxRetries.Inc()

	if c.retry < MaxTxRetry {
		c.respond(fmt.Sprintf(`NOK TX {"retry":"%d"}`, c.retry))
		c.report(storage.OutcomeRetry, strconv.Itoa(c.retry))
		return StateIdle
	}

	c.txFrameFilled = false
	telemetry.TxFailures.WithLabelValues("tx-timeout").Inc()
	c.log.Warn().Uint8("dest", c.lastDest).Msg("Transmission failed")
	c.respond(`NOK TX {"status":"FAILED"}`)
	c.report(storage.OutcomeFailed, "tx timeout")
	return StateIdle
}

// listenForAck switches the receiver to the fixed-length ack format
func (c *Context) listenForAck() {
	c.radio.SetFixedLengthRx(true, protocol.AckFrameSize)
	c.radio.SetPreamble(AckPreamble)
	c.radio.SetRxContinuous(true)
	c.radio.Receive(c.timing.RxAckGuard)
}

func (c *Context) restoreStdRx() {
	c.radio.SetFixedLengthRx(false, 0)
	c.radio.SetPreamble(c.timing.PreambleLen)
	c.radio.SetRxContinuous(true)
}

func (c *Context) restoreStdTx() {
	c.radio.SetFixedLengthTx(false)
	c.radio.SetPreamble(c.timing.PreambleLen)
	c.radio.SetTxTimeout(c.timing.TxStdGuard)
}

func (c *Context) ackReceived(p queue.RxPayload) State {
	c.restoreStdRx()
	c.setUnblockTimer()

	msg, err := c.codec.RetrieveMessage(p.Data)
	switch {
	case err != nil:
		telemetry.FramesRejected.WithLabelValues(rejectReason(err)).Inc()
		c.log.Debug().Err(err).Msg("Invalid frame in ack slot")
	case msg.Header.Type != protocol.TypeAck:
		telemetry.FramesRejected.WithLabelValues("unexpected-type").Inc()
	case msg.Ack.SrcID != c.lastDest:
		telemetry.FramesRejected.WithLabelValues("unexpected-source").Inc()
		c.log.Debug().Uint8("src", msg.Ack.SrcID).Uint8("want", c.lastDest).Msg("Ack from unexpected peer")
	default:
		telemetry.FramesReceived.WithLabelValues(protocol.TypeAck.String()).Inc()
		c.processAck(msg.Ack)
		return StateIdle
	}

	telemetry.TxFailures.WithLabelValues("no-ack").Inc()
	c.respond("NOK TX")
	c.report(storage.OutcomeNoAck, "invalid ack")
	return StateIdle
}

// processAck reconciles an acknowledgement and tells the host the outcome
func (c *Context) processAck(ack protocol.AckContent) {
	res := c.peers.ProcessAck(ack.SrcID, ack.RxdSeq, ack.ExpectedSeq)
	telemetry.AckOutcomes.WithLabelValues(res.Outcome.String()).Inc()

	detail := ""
	switch res.Outcome {
	case peer.AckOK, peer.AckReinit:
		c.respond("OK TX")
	case peer.AckMissingAck:
		detail = strconv.Itoa(int(res.Count))
		c.respond(fmt.Sprintf(`OK TX {"missingAck":"%d"}`, res.Count))
	case peer.AckMissingFrames:
		detail = strconv.Itoa(int(res.Count))
		c.respond(fmt.Sprintf(`OK TX {"missingFrames":"%d"}`, res.Count))
	default:
		rec := c.peers.Get(ack.SrcID)
		rec.OutRxSeq = peer.Next(ack.ExpectedSeq)
		c.peers.Set(ack.SrcID, rec)
		c.log.Warn().
			Err(peer.ErrSequenceAnomaly).
			Uint8("src", ack.SrcID).
			Uint8("rxd", ack.RxdSeq).
			Uint8("expected", ack.ExpectedSeq).
			Msg("Acknowledgement behind our record, resynchronised")
		c.respond("NOK TX")
	}
	c.report(res.Outcome.String(), detail)
}

func (c *Context) ackMissing(status string) State {
	c.restoreStdRx()
	c.setUnblockTimer()
	telemetry.TxFailures.WithLabelValues("no-ack").Inc()

	if status == "" {
		c.respond("NOK TX")
	} else {
		c.respond(fmt.Sprintf(`NOK TX {"status":"%s"}`, status))
	}
	c.report(storage.OutcomeNoAck, status)
	return StateIdle
}

// sendAck transmits the pending acknowledgement in the ack slot, without
// listening first: the slot is reserved for it.
func (c *Context) sendAck() State {
	if c.ackMsg == nil {
		return StateIdle
	}
	frame, err := c.codec.BuildFrame(c.ackMsg)
	c.ackMsg = nil
	if err != nil {
		telemetry.Faults.Inc()
		c.log.Error().Err(err).Msg("Failed to build acknowledgement")
		return StateIdle
	}

	c.radio.SetFixedLengthTx(true)
	c.radio.SetPreamble(AckPreamble)
	c.radio.SetTxTimeout(c.timing.TxAckGuard)
	c.radio.Send(frame)
	telemetry.FramesSent.WithLabelValues(protocol.TypeAck.String()).Inc()
	return StateTxingAck
}
