package peer

// AckOutcome is the verdict on a received acknowledgement
type AckOutcome int

// Acknowledgement outcomes
const (
	AckOK            AckOutcome = iota // delivered, records agree
	AckReinit                          // receiver restarted its expectation at 0
	AckMissingAck                      // delivered, some earlier acks were lost
	AckMissingFrames                   // delivered, receiver missed earlier frames
	AckBehind                          // receiver expectation behind our record
)

func (o AckOutcome) String() string {
	switch o {
	case AckOK:
		return "ok"
	case AckReinit:
		return "reinit"
	case AckMissingAck:
		return "missing-ack"
	case AckMissingFrames:
		return "missing-frames"
	default:
		return "behind"
	}
}

// Delivered reports whether the acknowledged frame reached the peer
func (o AckOutcome) Delivered() bool {
	return o != AckBehind
}

// AckResult is returned by ProcessAck
type AckResult struct {
	Outcome AckOutcome
	Count   uint8 // lost acks or missed frames
}

// ProcessAck reconciles an acknowledgement from src carrying the sequence
// it received (rxd) and the one it expected.
func (t *Table) ProcessAck(src, rxd, expected uint8) AckResult {
	rec := &t.records[src]

	if expected == 0 && rxd != 0 {
		rec.OutTxSeq = 1
		rec.OutRxSeq = 1
		rec.InExpected = 0
		return AckResult{Outcome: AckReinit}
	}

	ahead := rec.OutRxSeq < expected || (rec.OutRxSeq > RolloverHigh && expected < RolloverLow)

	if rxd == expected {
		switch {
		case rec.OutRxSeq == expected:
			rec.OutRxSeq = Next(rec.OutRxSeq)
			return AckResult{Outcome: AckOK}
		case ahead:
			lost := expected - rec.OutRxSeq
			rec.OutRxSeq = Next(expected)
			return AckResult{Outcome: AckMissingAck, Count: lost}
		default:
			return AckResult{Outcome: AckBehind}
		}
	}

	var res AckResult
	switch {
	case rec.OutRxSeq == expected:
		rec.OutRxSeq = Next(rec.OutRxSeq)
		res = AckResult{Outcome: AckMissingFrames, Count: rxd - expected}
	case ahead:
		res = AckResult{Outcome: AckMissingAck, Count: expected - rec.OutRxSeq}
	default:
		res = AckResult{Outcome: AckBehind}
	}

	if rxd > expected {
		rec.OutRxSeq = Next(rxd)
	}
	return res
}
