package engine

import (
	"github.com/agsys/lowapp/internal/storage"
)

// report journals the outcome of a transmit attempt to lastDest
func (c *Context) report(outcome, detail string) {
	if c.journal == nil {
		return
	}
	r := &storage.TxReport{
		DestID:    c.lastDest,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: c.sys.Now(),
	}
	if _, err := c.journal.InsertTxReport(r); err != nil {
		c.log.Error().Err(err).Msg("Failed to journal tx report")
	}
}

func (c *Context) recordRx(pkt RxPacket) {
	if c.journal == nil {
		return
	}
	p := &storage.RxPacket{
		SrcID:         pkt.SrcID,
		DestID:        pkt.DestID,
		RSSI:          pkt.RSSI,
		SNR:           pkt.SNR,
		Duplicate:     pkt.Duplicate,
		MissingFrames: pkt.Missing,
		Payload:       pkt.Payload,
		ReceivedAt:    c.sys.Now(),
	}
	if _, err := c.journal.InsertRxPacket(p); err != nil {
		c.log.Error().Err(err).Msg("Failed to journal rx packet")
	}
}

func (c *Context) recordPeer(src uint8, rssi int16) {
	if c.journal == nil {
		return
	}
	s := &storage.Sighting{DeviceID: src, LastRSSI: rssi, LastSeen: c.sys.Now()}
	if err := c.journal.UpsertSighting(s); err != nil {
		c.log.Error().Err(err).Msg("Failed to journal sighting")
	}
}
