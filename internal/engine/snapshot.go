package engine

import (
	"github.com/agsys/lowapp/internal/peer"
	"github.com/agsys/lowapp/internal/queue"
)

// QueueDepths reports how many items each queue holds
type QueueDepths struct {
	Hot  int `json:"hot"`
	Cold int `json:"cold"`
	AT   int `json:"at"`
	Tx   int `json:"tx"`
	Rx   int `json:"rx"`
}

// Status is a point-in-time view of the core for monitoring
type Status struct {
	State           string      `json:"state"`
	Connected       bool        `json:"connected"`
	Mode            string      `json:"mode"`
	TxBlocked       bool        `json:"txBlocked"`
	DeviceID        uint8       `json:"deviceId"`
	GroupID         uint16      `json:"groupId"`
	ChannelID       uint8       `json:"chanId"`
	SpreadingFactor uint8       `json:"txDatarate"`
	PreambleLen     uint16      `json:"preambleLen"`
	CADIntervalMs   int64       `json:"cadIntervalMs"`
	Faults          uint64      `json:"faults"`
	Queues          QueueDepths `json:"queues"`
}

// Snapshot returns the current status. It waits for Run to finish the
// event in progress.
func (c *Context) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		State:           c.state.String(),
		Connected:       c.connected,
		Mode:            c.opMode.String(),
		TxBlocked:       c.txBlocked.Load(),
		DeviceID:        c.params.DeviceID,
		GroupID:         c.params.GroupID,
		ChannelID:       c.params.ChannelID,
		SpreadingFactor: c.params.SpreadingFactor,
		PreambleLen:     c.timing.PreambleLen,
		CADIntervalMs:   c.timing.CADInterval.Milliseconds(),
		Faults:          c.faults,
		Queues: QueueDepths{
			Hot:  c.hot.Len(),
			Cold: c.cold.Len(),
			AT:   c.at.Len(),
			Tx:   c.tx.Len(),
			Rx:   c.rx.Len(),
		},
	}
}

// Peers returns the sequence records of every peer seen since start
func (c *Context) Peers() map[uint8]peer.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers.Known()
}

// Who returns the recently heard devices
func (c *Context) Who() []queue.Sighting {
	return c.stats.Entries()
}
