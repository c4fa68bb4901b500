// Package storage provides the SQLite journal kept by a node: received
// packets, transmit outcomes and the last sighting of every peer.
package storage

import "time"

// RxPacket is a standard message delivered to this node
type RxPacket struct {
	ID            int64     `json:"id"`
	SrcID         uint8     `json:"src_id"`
	DestID        uint8     `json:"dest_id"` // this node or broadcast
	RSSI          int16     `json:"rssi"`
	SNR           int8      `json:"snr"`
	Duplicate     bool      `json:"duplicate"`
	MissingFrames uint8     `json:"missing_frames"`
	Payload       []byte    `json:"payload"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Transmit outcomes recorded in tx_reports. Acknowledged unicast frames
// carry the acknowledgement verdict instead (ok, reinit, missing-ack,
// missing-frames, behind).
const (
	OutcomeBroadcast = "broadcast"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeNoAck     = "no-ack"
	OutcomeChannel   = "channel-busy"
)

// TxReport is the outcome of one transmit attempt
type TxReport struct {
	ID        int64     `json:"id"`
	DestID    uint8     `json:"dest_id"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Sighting is the last time a device was heard
type Sighting struct {
	DeviceID uint8     `json:"device_id"`
	LastRSSI int16     `json:"last_rssi"`
	LastSeen time.Time `json:"last_seen"`
}

// Stats summarises the journal
type Stats struct {
	RxPackets  int64 `json:"rx_packets"`
	Duplicates int64 `json:"duplicates"`
	TxReports  int64 `json:"tx_reports"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	Peers      int64 `json:"peers"`
}
