// Package protocol implements the LoWAPP frame format exchanged between
// nodes of a group: header packing, CRC protection and the per-frame
// keystream cipher.
package protocol

import "fmt"

// Version is the only protocol version accepted on receive.
const Version uint8 = 1

// MsgType identifies the body carried by a frame
type MsgType uint8

// Message types
const (
	TypeStandard   MsgType = 0x01 // Addressed payload with sequence number
	TypeAck        MsgType = 0x02 // Acknowledgement of a standard message
	TypeGatewayOut MsgType = 0x03 // Reserved, not implemented
	TypeGatewayIn  MsgType = 0x04 // Reserved, not implemented
)

func (t MsgType) String() string {
	switch t {
	case TypeStandard:
		return "standard"
	case TypeAck:
		return "ack"
	case TypeGatewayOut:
		return "gateway-out"
	case TypeGatewayIn:
		return "gateway-in"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Device addressing
const (
	GatewayID   uint8 = 0x00
	MinDeviceID uint8 = 0x01
	MaxDeviceID uint8 = 0xFA
	BroadcastID uint8 = 0xFF
)

// Frame layout sizes in bytes
const (
	HeaderSize     = 4 // version|type, payload length, rfu(2)
	NonceSize      = 2
	CRCSize        = 2
	StdBodySize    = 3 // dest, src, txSeq
	AckBodySize    = 4 // dest, src, rxdSeq, expectedSeq
	MaxFrameSize   = 255
	MaxPayloadSize = MaxFrameSize - HeaderSize - NonceSize - StdBodySize - CRCSize
	AckFrameSize   = HeaderSize + NonceSize + AckBodySize + CRCSize

	// encryption starts at the destination field
	encryptOffset = HeaderSize + NonceSize
)

// Header is the cleartext frame header
type Header struct {
	Version    uint8
	Type       MsgType
	PayloadLen uint8  // Standard payload length, 0 for acks
	RFU        uint16 // Reserved for future use
}

// StdContent is the body of a standard message
type StdContent struct {
	DestID  uint8
	SrcID   uint8
	TxSeq   uint8
	Payload []byte
}

// AckContent is the body of an acknowledgement
type AckContent struct {
	DestID      uint8
	SrcID       uint8
	RxdSeq      uint8 // Sequence number of the frame being acknowledged
	ExpectedSeq uint8 // Sequence number the receiver expected
}

// Message is a decoded frame. Exactly one of Std or Ack is meaningful,
// selected by Header.Type.
type Message struct {
	Header Header
	Nonce  uint16
	Std    StdContent
	Ack    AckContent
}

// NewStandard creates a standard message
func NewStandard(dest, src, seq uint8, payload []byte) *Message {
	return &Message{
		Header: Header{
			Version:    Version,
			Type:       TypeStandard,
			PayloadLen: uint8(len(payload)),
		},
		Std: StdContent{
			DestID:  dest,
			SrcID:   src,
			TxSeq:   seq,
			Payload: payload,
		},
	}
}

// NewAck creates an acknowledgement message
func NewAck(dest, src, rxdSeq, expectedSeq uint8) *Message {
	return &Message{
		Header: Header{
			Version: Version,
			Type:    TypeAck,
		},
		Ack: AckContent{
			DestID:      dest,
			SrcID:       src,
			RxdSeq:      rxdSeq,
			ExpectedSeq: expectedSeq,
		},
	}
}

// DestID returns the destination of the message regardless of its type
func (m *Message) DestID() uint8 {
	if m.Header.Type == TypeAck {
		return m.Ack.DestID
	}
	return m.Std.DestID
}

// SrcID returns the source of the message regardless of its type
func (m *Message) SrcID() uint8 {
	if m.Header.Type == TypeAck {
		return m.Ack.SrcID
	}
	return m.Std.SrcID
}

// IsUnicastID reports whether id is a valid unicast device address
func IsUnicastID(id uint8) bool {
	return id >= MinDeviceID && id <= MaxDeviceID
}

// FrameSize returns the number of bytes buildFrame will produce for m
func FrameSize(m *Message) (int, error) {
	switch m.Header.Type {
	case TypeStandard:
		return HeaderSize + NonceSize + StdBodySize + int(m.Header.PayloadLen) + CRCSize, nil
	case TypeAck:
		return AckFrameSize, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, m.Header.Type)
	}
}

// packHeader writes the 4-byte header. Multi-byte fields are big-endian.
func packHeader(buf []byte, h Header) {
	buf[0] = h.Version<<4 | uint8(h.Type)&0x0F
	buf[1] = h.PayloadLen
	buf[2] = byte(h.RFU >> 8)
	buf[3] = byte(h.RFU)
}

func parseHeader(buf []byte) Header {
	return Header{
		Version:    buf[0] >> 4,
		Type:       MsgType(buf[0] & 0x0F),
		PayloadLen: buf[1],
		RFU:        uint16(buf[2])<<8 | uint16(buf[3]),
	}
}
