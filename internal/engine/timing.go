package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/agsys/lowapp/internal/config"
	"github.com/agsys/lowapp/internal/lora"
	"github.com/agsys/lowapp/internal/protocol"
)

// Protocol timing
const (
	AckSlotStart        = 1000 * time.Millisecond // end of transmission to ack slot
	AckSlotLength       = 1000 * time.Millisecond
	ChannelFreeInterval = 10 * time.Millisecond
	AckSlotTx           = AckSlotStart + AckSlotLength/2 - ChannelFreeInterval

	AckPreamble    uint16 = 8
	MaxTxRetry            = 3
	RandomBlockMax        = 1000 // ms

	// symbols added to the preamble so a CAD started at the end of an
	// interval still finds it
	preambleMargin = 10
	guardFactor    = 1.2
)

// Timing holds the values derived from the spreading factor, bandwidth
// and preamble time
type Timing struct {
	PreambleLen      uint16 // symbols, 0 when the modulation is unusable
	PreambleDuration time.Duration
	CADInterval      time.Duration
	RxStdGuard       time.Duration
	TxStdGuard       time.Duration
	RxAckGuard       time.Duration
	TxAckGuard       time.Duration
	MaxFrameAirtime  time.Duration
}

// ceilMillis rounds d up to a whole number of milliseconds after scaling
func ceilMillis(d time.Duration, factor float64) time.Duration {
	ms := float64(d) / float64(time.Millisecond) * factor
	return time.Duration(math.Ceil(ms)) * time.Millisecond
}

// ComputeTiming derives the preamble length, CAD period and radio guard
// times for p
func ComputeTiming(p config.Params) Timing {
	sf, bw := p.SpreadingFactor, p.Bandwidth
	if lora.SymbolTime(sf, bw) == 0 {
		return Timing{}
	}

	var t Timing
	symbols := lora.PreambleSymbols(p.PreambleTime, sf, bw)
	t.PreambleLen = symbols + preambleMargin
	t.PreambleDuration = time.Duration(lora.PreambleDuration(t.PreambleLen, sf, bw)) * time.Millisecond
	t.CADInterval = time.Duration(lora.PreambleDuration(symbols, sf, bw)) * time.Millisecond

	std := lora.Modem{
		SpreadingFactor: sf,
		Bandwidth:       bw,
		CodingRate:      p.CodingRate,
		Preamble:        t.PreambleLen,
		CRC:             true,
	}
	ack := std
	ack.Preamble = AckPreamble
	ack.FixedLength = true

	t.MaxFrameAirtime = ceilMillis(std.TimeOnAir(protocol.MaxFrameSize), 1)
	t.RxStdGuard = ceilMillis(std.TimeOnAir(protocol.MaxFrameSize), guardFactor)
	t.TxStdGuard = t.RxStdGuard
	t.TxAckGuard = ceilMillis(ack.TimeOnAir(protocol.AckFrameSize), guardFactor)
	t.RxAckGuard = AckSlotLength + t.TxAckGuard
	return t
}

// modulation is the part of the configuration the timing is derived from
type modulation struct {
	sf    uint8
	bw    uint8
	pTime uint16
}

func modulationOf(p config.Params) modulation {
	return modulation{sf: p.SpreadingFactor, bw: p.Bandwidth, pTime: p.PreambleTime}
}

func randomBlock(rng *rand.Rand) time.Duration {
	return time.Duration(rng.Intn(RandomBlockMax+1)) * time.Millisecond
}

// UnblockDelay is how long the node stays off the channel after a
// transmission
func (t Timing) UnblockDelay(rng *rand.Rand) time.Duration {
	return t.PreambleDuration + randomBlock(rng)
}

// BackoffDelay is how long the node waits after finding the channel busy:
// long enough for a full frame and its acknowledgement slot
func (t Timing) BackoffDelay(rng *rand.Rand) time.Duration {
	return t.MaxFrameAirtime + randomBlock(rng) + AckSlotStart + AckSlotLength
}

// applyTiming recomputes the timing and pushes the standard modem
// configuration to the radio
func (c *Context) applyTiming() {
	c.timing = ComputeTiming(c.params)
	c.timedFor = modulationOf(c.params)
	p := c.params

	c.radio.SetTxConfig(lora.TxConfig{
		Power:           p.Power,
		Bandwidth:       p.Bandwidth,
		SpreadingFactor: p.SpreadingFactor,
		CodingRate:      p.CodingRate,
		Preamble:        c.timing.PreambleLen,
		Timeout:         c.timing.TxStdGuard,
	})
	c.radio.SetRxConfig(lora.RxConfig{
		Bandwidth:       p.Bandwidth,
		SpreadingFactor: p.SpreadingFactor,
		CodingRate:      p.CodingRate,
		Preamble:        c.timing.PreambleLen,
		Continuous:      true,
	})

	c.log.Info().
		Uint16("preamble_len", c.timing.PreambleLen).
		Dur("cad_interval", c.timing.CADInterval).
		Dur("rx_std_guard", c.timing.RxStdGuard).
		Dur("tx_ack_guard", c.timing.TxAckGuard).
		Msg("Radio timing updated")
}

// loadConfig applies the configuration record. Timing is recomputed when
// the loaded modulation differs from the one the current timing was
// derived from, so a change picked up by a failed load is applied by the
// next successful one.
func (c *Context) loadConfig() error {
	p, changes, err := config.Load(c.store, c.params)
	c.params = p

	if changes.Channel {
		c.radio.SetChannel(lora.ChannelFrequency(p.ChannelID))
	}
	c.codec = protocol.NewCodec(p.Key, p.GroupID, p.DeviceID)

	if err == nil && (c.timing.PreambleLen == 0 || modulationOf(p) != c.timedFor) {
		c.applyTiming()
		if c.connected {
			c.cad.Start(c.timing.CADInterval)
		}
	}
	return err
}
