package air

import (
	"bytes"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestFrameRoundTrip(t *testing.T) {
	in := &Frame{
		Sender:          "5f0c6a4e-7a1b-4c3e-9d2f-0a1b2c3d4e5f",
		Frequency:       863125000,
		SpreadingFactor: 7,
		Bandwidth:       0,
		CodingRate:      CodingRate45,
		Preamble:        494,
		FixedLength:     true,
		Airtime:         41216 * time.Microsecond,
		Power:           -3,
		Payload:         []byte{0x12, 0x00, 0x00, 0x00, 0xBE, 0xEF},
	}

	out, err := Unmarshal(Marshal(in))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out.Sender != in.Sender {
		t.Errorf("Sender mismatch: got %s, want %s", out.Sender, in.Sender)
	}
	if out.Frequency != in.Frequency {
		t.Errorf("Frequency mismatch: got %d, want %d", out.Frequency, in.Frequency)
	}
	if out.SpreadingFactor != in.SpreadingFactor {
		t.Errorf("SpreadingFactor mismatch: got %d, want %d", out.SpreadingFactor, in.SpreadingFactor)
	}
	if out.CodingRate != in.CodingRate {
		t.Errorf("CodingRate mismatch: got %s, want %s", out.CodingRate, in.CodingRate)
	}
	if out.Preamble != in.Preamble {
		t.Errorf("Preamble mismatch: got %d, want %d", out.Preamble, in.Preamble)
	}
	if !out.FixedLength {
		t.Error("FixedLength lost")
	}
	if out.Airtime != in.Airtime {
		t.Errorf("Airtime mismatch: got %v, want %v", out.Airtime, in.Airtime)
	}
	if out.Power != in.Power {
		t.Errorf("Power mismatch: got %d, want %d", out.Power, in.Power)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("Payload mismatch: got %x, want %x", out.Payload, in.Payload)
	}
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	b := Marshal(&Frame{Frequency: 863425000})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	f, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if f.Frequency != 863425000 {
		t.Errorf("Frequency mismatch: got %d, want 863425000", f.Frequency)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	b := Marshal(&Frame{Payload: []byte("truncate me")})
	if _, err := Unmarshal(b[:len(b)-3]); err == nil {
		t.Error("expected error for truncated frame")
	}
}
