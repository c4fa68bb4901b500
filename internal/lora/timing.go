package lora

import (
	"math"
	"time"
)

// Modem holds the parameters the timing model depends on
type Modem struct {
	SpreadingFactor uint8
	Bandwidth       uint8 // index
	CodingRate      uint8 // 1-4
	Preamble        uint16
	FixedLength     bool // implicit header
	CRC             bool
}

// SymbolTime returns the duration of one symbol in seconds
func SymbolTime(sf, bandwidth uint8) float64 {
	bw := BandwidthHz(bandwidth)
	if bw == 0 {
		return 0
	}
	return float64(uint32(1)<<sf) / float64(bw)
}

// PreambleSymbols converts a preamble duration in milliseconds to a
// number of symbols for the given modulation.
func PreambleSymbols(ms uint16, sf, bandwidth uint8) uint16 {
	ts := SymbolTime(sf, bandwidth)
	if ts == 0 {
		return 0
	}
	n := math.Floor(float64(ms)/1000/ts - 4.25)
	if n < 0 {
		return 0
	}
	return uint16(n)
}

// PreambleDuration converts a preamble length in symbols to milliseconds
func PreambleDuration(symbols uint16, sf, bandwidth uint8) uint32 {
	ts := SymbolTime(sf, bandwidth)
	return uint32(math.Floor((float64(symbols) + 4.25) * ts * 1000))
}

// lowDataRateOptimize is required when a symbol lasts 16 ms or more
func (m Modem) lowDataRateOptimize() bool {
	return SymbolTime(m.SpreadingFactor, m.Bandwidth) >= 0.016
}

// TimeOnAir returns how long a frame of payloadLen bytes occupies the
// channel. SX127x datasheet formula.
func (m Modem) TimeOnAir(payloadLen int) time.Duration {
	ts := SymbolTime(m.SpreadingFactor, m.Bandwidth)
	if ts == 0 {
		return 0
	}

	sf := int64(m.SpreadingFactor)
	var crc, ih, ldro int64
	if m.CRC {
		crc = 1
	}
	if m.FixedLength {
		ih = 1
	}
	if m.lowDataRateOptimize() {
		ldro = 1
	}

	num := 8*int64(payloadLen) - 4*sf + 28 + 16*crc - 20*ih
	div := 4 * (sf - 2*ldro)
	var payloadSymbols int64
	if num > 0 && div > 0 {
		payloadSymbols = (num + div - 1) / div * (int64(m.CodingRate) + 4)
	}

	symbols := float64(m.Preamble) + 4.25 + 8 + float64(payloadSymbols)
	return time.Duration(symbols * ts * float64(time.Second))
}
