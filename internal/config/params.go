package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Ranges accepted by the configuration checks
const (
	MinDeviceID        = 1
	MaxDeviceID        = 250
	MinSpreadingFactor = 7
	MaxSpreadingFactor = 12
	MaxChannelID       = 15
	UnsetChannelID     = 255
	KeySize            = 16
)

// Default radio parameters
const (
	DefaultCodingRate   = 1  // 4/5
	DefaultPower        = 14 // dBm
	DefaultBandwidth    = 0  // 125 kHz
	DefaultPreambleTime = 500
)

// Errors reported while loading or validating the record
var (
	ErrInvalidValue  = errors.New("invalid configuration value")
	ErrInvalidConfig = errors.New("incomplete or invalid configuration")
)

// Params is the typed view of the configuration record
type Params struct {
	ChannelID       uint8
	SpreadingFactor uint8
	Bandwidth       uint8
	CodingRate      uint8
	Power           int8
	GatewayMask     uint32
	DeviceID        uint8
	GroupID         uint16
	PreambleTime    uint16 // milliseconds
	Key             [KeySize]byte
}

// DefaultParams returns the parameters of a node that has never been
// configured
func DefaultParams() Params {
	return Params{
		ChannelID:    UnsetChannelID,
		Bandwidth:    DefaultBandwidth,
		CodingRate:   DefaultCodingRate,
		Power:        DefaultPower,
		PreambleTime: DefaultPreambleTime,
	}
}

// Changes reports which radio attributes a Load modified
type Changes struct {
	Channel bool
}

// Load reads every mandatory key from store into a copy of cur. Keys that
// parse are applied even when others fail. The error wraps ErrKeyNotFound
// if any mandatory key is missing, otherwise ErrInvalidValue if any value
// failed to parse.
func Load(store Store, cur Params) (Params, Changes, error) {
	p := cur
	var ch Changes
	var missing, invalid []string

	get := func(key string) (string, bool) {
		v, err := store.Get(key)
		if err != nil {
			missing = append(missing, key)
			return "", false
		}
		return v, true
	}

	if v, ok := get(KeyGatewayMask); ok {
		if n, err := parseHex(v, 8, 32); err == nil {
			p.GatewayMask = uint32(n)
		} else {
			invalid = append(invalid, KeyGatewayMask)
		}
	}
	if v, ok := get(KeyDeviceID); ok {
		if n, err := parseHex(v, 2, 8); err == nil {
			p.DeviceID = uint8(n)
		} else {
			invalid = append(invalid, KeyDeviceID)
		}
	}
	if v, ok := get(KeyGroupID); ok {
		if n, err := parseHex(v, 4, 16); err == nil {
			p.GroupID = uint16(n)
		} else {
			invalid = append(invalid, KeyGroupID)
		}
	}
	if v, ok := get(KeyChannelID); ok {
		if n, err := parseHex(v, 2, 8); err == nil {
			if uint8(n) != p.ChannelID {
				p.ChannelID = uint8(n)
				ch.Channel = true
			}
		} else {
			invalid = append(invalid, KeyChannelID)
		}
	}
	if v, ok := get(KeyTxDatarate); ok {
		if n, err := parseHex(v, 2, 8); err == nil {
			p.SpreadingFactor = uint8(n)
		} else {
			invalid = append(invalid, KeyTxDatarate)
		}
	}
	if v, ok := get(KeyPreambleTime); ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil && n != 0 {
			p.PreambleTime = uint16(n)
		} else {
			invalid = append(invalid, KeyPreambleTime)
		}
	}
	if v, ok := get(KeyEncKey); ok {
		if key, err := parseKey(v); err == nil {
			p.Key = key
		} else {
			invalid = append(invalid, KeyEncKey)
		}
	}

	// optional radio settings
	if v, err := store.Get(KeyBandwidth); err == nil {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil && n <= 2 {
			p.Bandwidth = uint8(n)
		} else {
			invalid = append(invalid, KeyBandwidth)
		}
	}
	if v, err := store.Get(KeyCodingRate); err == nil {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil && n >= 1 && n <= 4 {
			p.CodingRate = uint8(n)
		} else {
			invalid = append(invalid, KeyCodingRate)
		}
	}
	if v, err := store.Get(KeyPower); err == nil {
		if n, err := strconv.ParseInt(v, 10, 8); err == nil {
			p.Power = int8(n)
		} else {
			invalid = append(invalid, KeyPower)
		}
	}

	switch {
	case len(missing) > 0:
		return p, ch, fmt.Errorf("%w: %s", ErrKeyNotFound, strings.Join(missing, ", "))
	case len(invalid) > 0:
		return p, ch, fmt.Errorf("%w: %s", ErrInvalidValue, strings.Join(invalid, ", "))
	}
	return p, ch, nil
}

// Check validates a loaded configuration before the node may connect.
// preambleLen is the derived preamble length in symbols.
func Check(p Params, preambleLen uint16) error {
	switch {
	case p.Key == [KeySize]byte{}:
		return fmt.Errorf("%w: encryption key not set", ErrInvalidConfig)
	case preambleLen == 0:
		return fmt.Errorf("%w: preamble length is 0", ErrInvalidConfig)
	case p.DeviceID < MinDeviceID || p.DeviceID > MaxDeviceID:
		return fmt.Errorf("%w: device id %d", ErrInvalidConfig, p.DeviceID)
	case p.SpreadingFactor < MinSpreadingFactor || p.SpreadingFactor > MaxSpreadingFactor:
		return fmt.Errorf("%w: spreading factor %d", ErrInvalidConfig, p.SpreadingFactor)
	case p.ChannelID > MaxChannelID:
		return fmt.Errorf("%w: channel %d", ErrInvalidConfig, p.ChannelID)
	}
	return nil
}

// CheckAttribute validates a value before it is stored under key by an AT
// set command. Only the keys exposed through AT commands are accepted.
func CheckAttribute(key, val string) error {
	bad := func(reason string) error {
		return fmt.Errorf("%w: %s=%q %s", ErrInvalidValue, key, val, reason)
	}

	switch key {
	case KeyGatewayMask:
		if len(val) != 8 {
			return bad("must be 8 hex digits")
		}
		if _, err := parseHex(val, 8, 32); err != nil {
			return bad("not hex")
		}
	case KeyDeviceID:
		if len(val) != 2 {
			return bad("must be 2 hex digits")
		}
		n, err := parseHex(val, 2, 8)
		if err != nil {
			return bad("not hex")
		}
		if n < MinDeviceID || n > MaxDeviceID {
			return bad("out of range")
		}
	case KeyGroupID:
		if len(val) != 4 {
			return bad("must be 4 hex digits")
		}
		if _, err := parseHex(val, 4, 16); err != nil {
			return bad("not hex")
		}
	case KeyChannelID:
		n, err := parseHex(val, 2, 8)
		if err != nil {
			return bad("not hex")
		}
		if n > MaxChannelID {
			return bad("out of range")
		}
	case KeyTxDatarate:
		n, err := parseHex(val, 2, 8)
		if err != nil {
			return bad("not hex")
		}
		if n < MinSpreadingFactor || n > MaxSpreadingFactor {
			return bad("out of range")
		}
	case KeyPreambleTime:
		n, err := strconv.ParseUint(val, 10, 16)
		if err != nil || n == 0 {
			return bad("must be a non-zero decimal")
		}
	case KeyEncKey:
		if len(val) != 2*KeySize {
			return bad("must be 32 hex digits")
		}
		k, err := parseKey(val)
		if err != nil {
			return bad("not hex")
		}
		if k == [KeySize]byte{} {
			return bad("must not be all zero")
		}
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidValue, key)
	}
	return nil
}

// parseHex parses at most maxDigits hex digits into a bits-wide value
func parseHex(s string, maxDigits, bits int) (uint64, error) {
	if s == "" || len(s) > maxDigits {
		return 0, fmt.Errorf("bad hex length %d", len(s))
	}
	return strconv.ParseUint(s, 16, bits)
}

func parseKey(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(s) != 2*KeySize {
		return key, fmt.Errorf("bad key length %d", len(s))
	}
	if _, err := hex.Decode(key[:], []byte(s)); err != nil {
		return key, err
	}
	return key, nil
}

// Display formats the displayable part of the configuration as the JSON
// object returned by the display command. The key is never shown.
func (p Params) Display() string {
	return fmt.Sprintf(`{"chanId":"%02X","txDatarate":"%02X","bandwidth":"%d","coderate":"%d","power":"%02d","gwMask":"%08X","deviceId":"%02X","groupId":"%04X","pTime":"%05d"}`,
		p.ChannelID, p.SpreadingFactor, p.Bandwidth, p.CodingRate, p.Power,
		p.GatewayMask, p.DeviceID, p.GroupID, p.PreambleTime)
}
