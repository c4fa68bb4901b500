package engine

import (
	"errors"

	"github.com/agsys/lowapp/internal/peer"
	"github.com/agsys/lowapp/internal/protocol"
	"github.com/agsys/lowapp/internal/queue"
	"github.com/agsys/lowapp/internal/telemetry"
)

// rejectReason labels a RetrieveMessage error for the rejected frames metric
func rejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrNotForMe):
		return "not-for-me"
	case errors.Is(err, protocol.ErrCRC):
		return "crc"
	case errors.Is(err, protocol.ErrVersion):
		return "version"
	case errors.Is(err, protocol.ErrUnknownType):
		return "type"
	case errors.Is(err, protocol.ErrShortFrame):
		return "short"
	default:
		return "other"
	}
}

// receiveFrame handles a frame heard while listening for standard traffic
func (c *Context) receiveFrame(p queue.RxPayload) State {
	msg, err := c.codec.RetrieveMessage(p.Data)
	if err != nil {
		telemetry.FramesRejected.WithLabelValues(rejectReason(err)).Inc()
		c.log.Debug().Err(err).Int16("rssi", p.RSSI).Msg("Frame rejected")

		// stay off the channel while the addressee answers
		if errors.Is(err, protocol.ErrNotForMe) && msg != nil && msg.Header.Type == protocol.TypeStandard {
			return StateSkippingAck
		}
		return StateIdle
	}
	if msg.Header.Type != protocol.TypeStandard {
		telemetry.FramesRejected.WithLabelValues("unexpected-type").Inc()
		return StateIdle
	}
	return c.deliver(msg.Std, p)
}

// deliver queues a standard message for the host and prepares the
// acknowledgement of unicast frames
func (c *Context) deliver(std protocol.StdContent, p queue.RxPayload) State {
	telemetry.FramesReceived.WithLabelValues(protocol.TypeStandard.String()).Inc()
	c.recordSighting(std.SrcID, p.RSSI)

	if c.rx.Full() {
		telemetry.QueueDrops.WithLabelValues("rx").Inc()
		c.log.Warn().Uint8("src", std.SrcID).Msg("Receive queue full, frame dropped")
		return StateIdle
	}

	pkt := RxPacket{
		SrcID:   std.SrcID,
		DestID:  std.DestID,
		RSSI:    p.RSSI,
		SNR:     p.SNR,
		Payload: std.Payload,
	}

	// broadcasts are neither sequenced nor acknowledged
	if std.DestID == protocol.BroadcastID {
		c.queueRx(pkt)
		return StateIdle
	}

	in := c.peers.Receive(std.SrcID, std.TxSeq)
	if in.Restarted {
		c.log.Info().Uint8("src", std.SrcID).Msg("Peer restarted its sequence")
	}
	if in.Relation != peer.Match {
		telemetry.SequenceEvents.WithLabelValues(in.Relation.String()).Inc()
	}
	if in.Err != nil {
		c.log.Warn().Err(in.Err).Msg("Sequence resynchronised")
	}

	pkt.Duplicate = in.Duplicate
	pkt.Missing = in.Missing
	c.queueRx(pkt)

	c.ackMsg = protocol.NewAck(std.SrcID, c.params.DeviceID, in.AckRxd, in.AckExpected)
	return StateWaitSlotTxAck
}

func (c *Context) queueRx(pkt RxPacket) {
	c.rx.Push(pkt)
	c.recordRx(pkt)
}

func (c *Context) recordSighting(src uint8, rssi int16) {
	c.stats.Update(queue.Sighting{DeviceID: src, LastRSSI: rssi, LastSeen: c.millis()})
	c.recordPeer(src, rssi)
}
