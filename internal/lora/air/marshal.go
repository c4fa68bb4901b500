package air

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldSender          protowire.Number = 1
	fieldFrequency       protowire.Number = 2
	fieldSpreadingFactor protowire.Number = 3
	fieldBandwidth       protowire.Number = 4
	fieldCodingRate      protowire.Number = 5
	fieldPreamble        protowire.Number = 6
	fieldFixedLength     protowire.Number = 7
	fieldAirtime         protowire.Number = 8
	fieldPower           protowire.Number = 9
	fieldPayload         protowire.Number = 10
)

// Marshal serializes a frame. Zero-valued scalar fields are omitted.
func Marshal(f *Frame) []byte {
	var b []byte

	if f.Sender != "" {
		b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
		b = protowire.AppendString(b, f.Sender)
	}
	b = appendUint(b, fieldFrequency, uint64(f.Frequency))
	b = appendUint(b, fieldSpreadingFactor, uint64(f.SpreadingFactor))
	b = appendUint(b, fieldBandwidth, uint64(f.Bandwidth))
	b = appendUint(b, fieldCodingRate, uint64(f.CodingRate))
	b = appendUint(b, fieldPreamble, uint64(f.Preamble))
	if f.FixedLength {
		b = appendUint(b, fieldFixedLength, 1)
	}
	b = appendUint(b, fieldAirtime, uint64(f.Airtime/time.Microsecond))
	if f.Power != 0 {
		b = protowire.AppendTag(b, fieldPower, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(f.Power)))
	}
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}

	return b
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Unmarshal parses a frame. Unknown fields are skipped.
func Unmarshal(data []byte) (*Frame, error) {
	f := &Frame{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldSender || num == fieldPayload):
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			if num == fieldSender {
				f.Sender = string(v)
			} else {
				f.Payload = append([]byte(nil), v...)
			}
			data = data[n:]

		case typ == protowire.VarintType && num >= fieldFrequency && num <= fieldPower:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			f.setVarint(num, v)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return f, nil
}

func (f *Frame) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldFrequency:
		f.Frequency = uint32(v)
	case fieldSpreadingFactor:
		f.SpreadingFactor = uint32(v)
	case fieldBandwidth:
		f.Bandwidth = uint32(v)
	case fieldCodingRate:
		f.CodingRate = CodingRate(v)
	case fieldPreamble:
		f.Preamble = uint32(v)
	case fieldFixedLength:
		f.FixedLength = v != 0
	case fieldAirtime:
		f.Airtime = time.Duration(v) * time.Microsecond
	case fieldPower:
		f.Power = int32(protowire.DecodeZigZag(v))
	}
}
