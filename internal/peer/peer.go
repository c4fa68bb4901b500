// Package peer tracks per-device sequence numbers and reconciles them
// against received frames and acknowledgements.
package peer

import "errors"

// Rollover thresholds used to tell a wrap of the 1..255 sequence space
// apart from reordering.
const (
	RolloverLow  uint8 = 30
	RolloverHigh uint8 = 230

	// A received sequence at most this far behind the expected one is a
	// retransmission of a frame already delivered.
	duplicateWindow uint8 = 10
)

// ErrSequenceAnomaly marks a sequence relation that fits none of the
// match, gap or duplicate cases.
var ErrSequenceAnomaly = errors.New("sequence anomaly")

// Next returns the successor of seq in the 1..255 space. 0 is only used as
// the "freshly reset" value and is never produced.
func Next(seq uint8) uint8 {
	return seq%255 + 1
}

// Record is the sequence state kept for one remote device
type Record struct {
	OutTxSeq   uint8 `json:"outTxSeq"`   // stamped on the next frame we send to the peer
	OutRxSeq   uint8 `json:"outRxSeq"`   // next ack expectation we believe the peer holds
	InExpected uint8 `json:"inExpected"` // next sequence we expect from the peer
}

// Table holds a record for every possible device id
type Table struct {
	records [256]Record
}

// Get returns a copy of the record for id
func (t *Table) Get(id uint8) Record {
	return t.records[id]
}

// Set replaces the record for id
func (t *Table) Set(id uint8, r Record) {
	t.records[id] = r
}

// Reset zeroes every record
func (t *Table) Reset() {
	t.records = [256]Record{}
}

// Known returns the ids whose record is not all zero
func (t *Table) Known() map[uint8]Record {
	out := make(map[uint8]Record)
	for id, r := range t.records {
		if r != (Record{}) {
			out[uint8(id)] = r
		}
	}
	return out
}

// TxSeq returns the sequence to stamp on the next frame for dest
func (t *Table) TxSeq(dest uint8) uint8 {
	return t.records[dest].OutTxSeq
}

// TxDone advances the outbound sequence for dest after a transmission
func (t *Table) TxDone(dest uint8) {
	t.records[dest].OutTxSeq = Next(t.records[dest].OutTxSeq)
}
