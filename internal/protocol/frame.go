package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors returned by RetrieveMessage and BuildFrame
var (
	ErrUnknownType     = errors.New("unknown message type")
	ErrNotForMe        = errors.New("message not for this node")
	ErrCRC             = errors.New("crc mismatch")
	ErrVersion         = errors.New("unsupported protocol version")
	ErrShortFrame      = errors.New("frame too short")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Codec builds and parses frames for one node of one group
type Codec struct {
	key      [KeySize]byte
	groupID  uint16
	deviceID uint8
	nonce    func() uint16
}

// NewCodec creates a codec using a cryptographically random nonce per frame
func NewCodec(key [KeySize]byte, groupID uint16, deviceID uint8) *Codec {
	return &Codec{
		key:      key,
		groupID:  groupID,
		deviceID: deviceID,
		nonce:    randomNonce,
	}
}

// SetNonceSource overrides the nonce generator
func (c *Codec) SetNonceSource(fn func() uint16) {
	c.nonce = fn
}

// DeviceID returns the address this codec accepts frames for
func (c *Codec) DeviceID() uint8 {
	return c.deviceID
}

func randomNonce() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

// BuildFrame serializes, protects and encrypts m. A fresh nonce is drawn
// for every call and stored back into m.
func (c *Codec) BuildFrame(m *Message) ([]byte, error) {
	if m.Header.Type == TypeStandard {
		if len(m.Std.Payload) > MaxPayloadSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(m.Std.Payload))
		}
		m.Header.PayloadLen = uint8(len(m.Std.Payload))
	}

	size, err := FrameSize(m)
	if err != nil {
		return nil, err
	}

	m.Header.Version = Version
	m.Nonce = c.nonce()

	buf := make([]byte, size)
	packHeader(buf, m.Header)
	binary.BigEndian.PutUint16(buf[HeaderSize:], m.Nonce)

	body := buf[encryptOffset:]
	switch m.Header.Type {
	case TypeStandard:
		body[0] = m.Std.DestID
		body[1] = m.Std.SrcID
		body[2] = m.Std.TxSeq
		copy(body[StdBodySize:], m.Std.Payload)
	case TypeAck:
		m.Header.PayloadLen = 0
		buf[1] = 0
		body[0] = m.Ack.DestID
		body[1] = m.Ack.SrcID
		body[2] = m.Ack.RxdSeq
		body[3] = m.Ack.ExpectedSeq
	}

	crc := ComputeCRC(buf[:size-CRCSize], CRCIBM)
	binary.BigEndian.PutUint16(buf[size-CRCSize:], crc)

	if err := applyKeystream(frameKey(c.key, c.groupID, m.Nonce), buf[encryptOffset:]); err != nil {
		return nil, err
	}

	return buf, nil
}

// RetrieveMessage decrypts and validates a received frame. Checks run in
// order: version, length, CRC, destination. On ErrNotForMe the decoded
// message is still returned so callers can tell its type.
func (c *Codec) RetrieveMessage(frame []byte) (*Message, error) {
	if len(frame) < HeaderSize+NonceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}

	m := &Message{Header: parseHeader(frame)}
	if m.Header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, m.Header.Version)
	}
	m.Nonce = binary.BigEndian.Uint16(frame[HeaderSize:])

	size, err := FrameSize(m)
	if err != nil {
		return nil, err
	}
	if len(frame) < size {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortFrame, len(frame), size)
	}

	// decrypt a copy, the caller keeps its buffer
	buf := make([]byte, size)
	copy(buf, frame[:size])
	if err := applyKeystream(frameKey(c.key, c.groupID, m.Nonce), buf[encryptOffset:]); err != nil {
		return nil, err
	}

	want := binary.BigEndian.Uint16(buf[size-CRCSize:])
	if got := ComputeCRC(buf[:size-CRCSize], CRCIBM); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrCRC, got, want)
	}

	body := buf[encryptOffset:]
	switch m.Header.Type {
	case TypeStandard:
		m.Std = StdContent{
			DestID:  body[0],
			SrcID:   body[1],
			TxSeq:   body[2],
			Payload: body[StdBodySize : StdBodySize+int(m.Header.PayloadLen)],
		}
		if m.Std.DestID != c.deviceID && m.Std.DestID != BroadcastID {
			return m, fmt.Errorf("%w: dest %d", ErrNotForMe, m.Std.DestID)
		}
	case TypeAck:
		m.Ack = AckContent{
			DestID:      body[0],
			SrcID:       body[1],
			RxdSeq:      body[2],
			ExpectedSeq: body[3],
		}
		if m.Ack.DestID != c.deviceID {
			return m, fmt.Errorf("%w: dest %d", ErrNotForMe, m.Ack.DestID)
		}
	}

	return m, nil
}
