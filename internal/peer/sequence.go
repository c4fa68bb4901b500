package peer

import "fmt"

// Relation classifies a received sequence number against the expected one
type Relation int

// Sequence relations
const (
	Match Relation = iota
	Gap
	Duplicate
	Anomaly
)

func (r Relation) String() string {
	switch r {
	case Match:
		return "match"
	case Gap:
		return "gap"
	case Duplicate:
		return "duplicate"
	default:
		return "anomaly"
	}
}

// Classify compares a received sequence number with the expected one.
// Wraparound is recognised through the low/high rollover thresholds.
func Classify(expected, received uint8) Relation {
	switch {
	case received == expected:
		return Match
	case received > expected || (received < RolloverLow && expected > RolloverHigh):
		return Gap
	case (received < expected || (received > RolloverHigh && expected < RolloverLow)) &&
		expected-received < duplicateWindow:
		return Duplicate
	default:
		return Anomaly
	}
}

// Inbound is the outcome of recording a received standard frame
type Inbound struct {
	Relation  Relation
	Missing   uint8 // frames skipped when Relation is Gap
	Duplicate bool
	Restarted bool // the peer restarted its sequence at 0

	// Values to put in the acknowledgement
	AckRxd      uint8
	AckExpected uint8

	// Err is ErrSequenceAnomaly when the relation fits no known case. The
	// expectation has then been resynchronised on the received value.
	Err error
}

// Receive records a standard frame with sequence txSeq from src and
// returns what the acknowledgement must carry.
func (t *Table) Receive(src, txSeq uint8) Inbound {
	rec := &t.records[src]
	var in Inbound

	// a peer that rebooted starts again at 0
	if txSeq == 0 && rec.InExpected != 0 {
		*rec = Record{}
		in.Restarted = true
	}

	in.AckRxd = txSeq
	in.AckExpected = rec.InExpected
	in.Relation = Classify(rec.InExpected, txSeq)

	switch in.Relation {
	case Match:
		rec.InExpected = Next(rec.InExpected)
	case Gap:
		in.Missing = txSeq - rec.InExpected
		rec.InExpected = Next(txSeq)
	case Duplicate:
		in.Duplicate = true
	case Anomaly:
		in.Err = fmt.Errorf("%w: received %d, expected %d from %d", ErrSequenceAnomaly, txSeq, rec.InExpected, src)
		rec.InExpected = Next(txSeq)
	}

	return in
}
