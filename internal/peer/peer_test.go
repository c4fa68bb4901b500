package peer

import (
	"errors"
	"testing"
)

func TestNext(t *testing.T) {
	tests := []struct{ in, want uint8 }{
		{0, 1}, {1, 2}, {254, 255}, {255, 1},
	}
	for _, tt := range tests {
		if got := Next(tt.in); got != tt.want {
			t.Errorf("Next(%d) mismatch: got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		expected uint8
		received uint8
		want     Relation
	}{
		{name: "match", expected: 5, received: 5, want: Match},
		{name: "one ahead", expected: 5, received: 6, want: Gap},
		{name: "far ahead", expected: 5, received: 200, want: Gap},
		{name: "rollover gap", expected: 250, received: 3, want: Gap},
		{name: "one behind", expected: 5, received: 4, want: Duplicate},
		{name: "nine behind", expected: 20, received: 11, want: Duplicate},
		{name: "ten behind", expected: 20, received: 10, want: Anomaly},
		{name: "far behind", expected: 100, received: 50, want: Anomaly},
		{name: "zero expected", expected: 0, received: 0, want: Match},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.expected, tt.received); got != tt.want {
				t.Errorf("Classify(%d, %d) mismatch: got %s, want %s", tt.expected, tt.received, got, tt.want)
			}
		})
	}
}

func TestReceive(t *testing.T) {
	tests := []struct {
		name         string
		start        Record
		txSeq        uint8
		wantExpected uint8
		wantMissing  uint8
		wantDup      bool
		wantRestart  bool
		wantAckExp   uint8
		wantErr      error
	}{
		{name: "match", start: Record{InExpected: 1}, txSeq: 1, wantExpected: 2, wantAckExp: 1},
		{name: "first frame", start: Record{}, txSeq: 0, wantExpected: 1, wantAckExp: 0},
		{name: "gap", start: Record{InExpected: 3}, txSeq: 7, wantExpected: 8, wantMissing: 4, wantAckExp: 3},
		{name: "rollover gap", start: Record{InExpected: 250}, txSeq: 3, wantExpected: 4, wantMissing: 9, wantAckExp: 250},
		{name: "duplicate", start: Record{InExpected: 8}, txSeq: 7, wantExpected: 8, wantDup: true, wantAckExp: 8},
		{name: "restart", start: Record{OutTxSeq: 9, OutRxSeq: 9, InExpected: 42}, txSeq: 0, wantExpected: 1, wantRestart: true, wantAckExp: 0},
		{name: "anomaly resync", start: Record{InExpected: 100}, txSeq: 50, wantExpected: 51, wantAckExp: 100, wantErr: ErrSequenceAnomaly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var table Table
			table.Set(4, tt.start)

			in := table.Receive(4, tt.txSeq)

			if got := table.Get(4).InExpected; got != tt.wantExpected {
				t.Errorf("InExpected mismatch: got %d, want %d", got, tt.wantExpected)
			}
			if in.Missing != tt.wantMissing {
				t.Errorf("Missing mismatch: got %d, want %d", in.Missing, tt.wantMissing)
			}
			if in.Duplicate != tt.wantDup {
				t.Errorf("Duplicate mismatch: got %v, want %v", in.Duplicate, tt.wantDup)
			}
			if in.Restarted != tt.wantRestart {
				t.Errorf("Restarted mismatch: got %v, want %v", in.Restarted, tt.wantRestart)
			}
			if in.AckRxd != tt.txSeq {
				t.Errorf("AckRxd mismatch: got %d, want %d", in.AckRxd, tt.txSeq)
			}
			if in.AckExpected != tt.wantAckExp {
				t.Errorf("AckExpected mismatch: got %d, want %d", in.AckExpected, tt.wantAckExp)
			}
			if !errors.Is(in.Err, tt.wantErr) {
				t.Errorf("Err mismatch: got %v, want %v", in.Err, tt.wantErr)
			}
		})
	}
}

func TestRestartClearsOutbound(t *testing.T) {
	var table Table
	table.Set(9, Record{OutTxSeq: 12, OutRxSeq: 12, InExpected: 30})

	table.Receive(9, 0)

	rec := table.Get(9)
	if rec.OutTxSeq != 0 || rec.OutRxSeq != 0 {
		t.Errorf("outbound not reset: %+v", rec)
	}
}

func TestProcessAck(t *testing.T) {
	tests := []struct {
		name        string
		start       Record
		rxd         uint8
		expected    uint8
		wantOutcome AckOutcome
		wantCount   uint8
		want        Record
	}{
		{
			name:        "in sync",
			start:       Record{OutTxSeq: 2, OutRxSeq: 1},
			rxd:         1, expected: 1,
			wantOutcome: AckOK,
			want:        Record{OutTxSeq: 2, OutRxSeq: 2},
		},
		{
			name:        "first exchange",
			start:       Record{OutTxSeq: 1, OutRxSeq: 0},
			rxd:         0, expected: 0,
			wantOutcome: AckOK,
			want:        Record{OutTxSeq: 1, OutRxSeq: 1},
		},
		{
			name:        "receiver reinitialised",
			start:       Record{OutTxSeq: 8, OutRxSeq: 7, InExpected: 3},
			rxd:         7, expected: 0,
			wantOutcome: AckReinit,
			want:        Record{OutTxSeq: 1, OutRxSeq: 1},
		},
		{
			name:        "lost acks",
			start:       Record{OutTxSeq: 6, OutRxSeq: 3},
			rxd:         5, expected: 5,
			wantOutcome: AckMissingAck, wantCount: 2,
			want:        Record{OutTxSeq: 6, OutRxSeq: 6},
		},
		{
			name:        "receiver behind",
			start:       Record{OutTxSeq: 6, OutRxSeq: 5},
			rxd:         3, expected: 3,
			wantOutcome: AckBehind,
			want:        Record{OutTxSeq: 6, OutRxSeq: 5},
		},
		{
			name:        "missed frames",
			start:       Record{OutTxSeq: 9, OutRxSeq: 5},
			rxd:         8, expected: 5,
			wantOutcome: AckMissingFrames, wantCount: 3,
			want:        Record{OutTxSeq: 9, OutRxSeq: 9},
		},
		{
			name:        "missed frames and lost acks",
			start:       Record{OutTxSeq: 9, OutRxSeq: 3},
			rxd:         8, expected: 5,
			wantOutcome: AckMissingAck, wantCount: 2,
			want:        Record{OutTxSeq: 9, OutRxSeq: 9},
		},
		{
			name:        "rollover in sync",
			start:       Record{OutTxSeq: 1, OutRxSeq: 255},
			rxd:         255, expected: 255,
			wantOutcome: AckOK,
			want:        Record{OutTxSeq: 1, OutRxSeq: 1},
		},
		{
			name:        "rollover lost acks",
			start:       Record{OutTxSeq: 4, OutRxSeq: 254},
			rxd:         2, expected: 2,
			wantOutcome: AckMissingAck, wantCount: 4,
			want:        Record{OutTxSeq: 4, OutRxSeq: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var table Table
			table.Set(2, tt.start)

			res := table.ProcessAck(2, tt.rxd, tt.expected)

			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome mismatch: got %s, want %s", res.Outcome, tt.wantOutcome)
			}
			if res.Count != tt.wantCount {
				t.Errorf("Count mismatch: got %d, want %d", res.Count, tt.wantCount)
			}
			if got := table.Get(2); got != tt.want {
				t.Errorf("record mismatch: got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTxSequence(t *testing.T) {
	var table Table
	if table.TxSeq(3) != 0 {
		t.Fatalf("fresh TxSeq: got %d, want 0", table.TxSeq(3))
	}
	table.TxDone(3)
	table.TxDone(3)
	if table.TxSeq(3) != 2 {
		t.Errorf("TxSeq mismatch: got %d, want 2", table.TxSeq(3))
	}
	if len(table.Known()) != 1 {
		t.Errorf("Known mismatch: got %d entries, want 1", len(table.Known()))
	}
}
