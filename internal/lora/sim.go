package lora

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/lora/air"
)

// SimConfig holds configuration for a simulated radio
type SimConfig struct {
	UplinkURL   string // medium input, frames are published here
	DownlinkURL string // medium output, frames are received from here
	RSSI        int16  // reported for every received frame
	SNR         int8
}

// DefaultSimConfig returns the endpoints used by `lowapp-node medium`
func DefaultSimConfig() SimConfig {
	return SimConfig{
		UplinkURL:   "tcp://127.0.0.1:7701",
		DownlinkURL: "tcp://127.0.0.1:7702",
		RSSI:        -60,
		SNR:         9,
	}
}

type radioMode int

const (
	modeSleep radioMode = iota
	modeTx
	modeRx
	modeCAD
)

// airFrame is a frame heard on the medium, kept while it occupies the channel
type airFrame struct {
	frame *air.Frame
	start time.Time
	end   time.Time
}

// SimRadio implements Radio on top of a ZeroMQ broadcast medium. Every
// node publishes its transmissions to the medium and receives everyone
// else's; channel occupancy is derived from each frame's time on air.
type SimRadio struct {
	config  SimConfig
	id      string
	log     zerolog.Logger
	pubSock zmq4.Socket
	subSock zmq4.Socket
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	events  Events
	tx      TxConfig
	rx      RxConfig
	freq    uint32
	mode    radioMode
	rxStart time.Time
	gen     uint64 // invalidates pending completions on mode change
	inAir   []airFrame
	rng     *rand.Rand
}

// NewSimRadio creates a simulated radio with a random instance id
func NewSimRadio(config SimConfig, logger zerolog.Logger) *SimRadio {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	return &SimRadio{
		config: config,
		id:     id,
		log:    logger.With().Str("component", "radio").Str("radio_id", id).Logger(),
		ctx:    ctx,
		cancel: cancel,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ID returns the instance id stamped on transmitted frames
func (r *SimRadio) ID() string {
	return r.id
}

// Start connects to the medium and starts the receive loop
func (r *SimRadio) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("radio already running")
	}
	r.running = true
	r.mu.Unlock()

	r.pubSock = zmq4.NewPub(r.ctx)
	if err := r.pubSock.Dial(r.config.UplinkURL); err != nil {
		return fmt.Errorf("failed to connect uplink socket: %w", err)
	}

	r.subSock = zmq4.NewSub(r.ctx)
	if err := r.subSock.Dial(r.config.DownlinkURL); err != nil {
		r.pubSock.Close()
		return fmt.Errorf("failed to connect downlink socket: %w", err)
	}
	if err := r.subSock.SetOption(zmq4.OptionSubscribe, air.Topic); err != nil {
		r.pubSock.Close()
		r.subSock.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.wg.Add(1)
	go r.eventLoop()

	r.log.Info().
		Str("uplink", r.config.UplinkURL).
		Str("downlink", r.config.DownlinkURL).
		Msg("simulated radio started")
	return nil
}

// Stop disconnects from the medium
func (r *SimRadio) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.gen++
	r.mu.Unlock()

	r.cancel()
	if r.subSock != nil {
		r.subSock.Close()
	}
	r.wg.Wait()
	if r.pubSock != nil {
		r.pubSock.Close()
	}

	r.log.Info().Msg("simulated radio stopped")
	return nil
}

// Init registers the completion callbacks
func (r *SimRadio) Init(events Events) {
	r.mu.Lock()
	r.events = events
	r.mu.Unlock()
}

func (r *SimRadio) SetTxConfig(cfg TxConfig) {
	r.mu.Lock()
	r.tx = cfg
	r.mu.Unlock()
}

func (r *SimRadio) SetRxConfig(cfg RxConfig) {
	r.mu.Lock()
	r.rx = cfg
	r.mu.Unlock()
}

func (r *SimRadio) SetChannel(freq uint32) {
	r.mu.Lock()
	r.freq = freq
	r.mu.Unlock()
}

func (r *SimRadio) SetPreamble(symbols uint16) {
	r.mu.Lock()
	r.tx.Preamble = symbols
	r.rx.Preamble = symbols
	r.mu.Unlock()
}

func (r *SimRadio) SetFixedLengthTx(enabled bool) {
	r.mu.Lock()
	r.tx.FixedLength = enabled
	r.mu.Unlock()
}

func (r *SimRadio) SetFixedLengthRx(enabled bool, length uint8) {
	r.mu.Lock()
	r.rx.FixedLength = enabled
	r.rx.PayloadLength = length
	r.mu.Unlock()
}

func (r *SimRadio) SetTxTimeout(timeout time.Duration) {
	r.mu.Lock()
	r.tx.Timeout = timeout
	r.mu.Unlock()
}

func (r *SimRadio) SetRxContinuous(enabled bool) {
	r.mu.Lock()
	r.rx.Continuous = enabled
	r.mu.Unlock()
}

// Random returns a pseudo-random 32-bit value
func (r *SimRadio) Random() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Uint32()
}

// TimeOnAir returns the airtime of a payload with the current tx settings
func (r *SimRadio) TimeOnAir(payloadLen int) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txModem().TimeOnAir(payloadLen)
}

// txModem must be called with mu held
func (r *SimRadio) txModem() Modem {
	return Modem{
		SpreadingFactor: r.tx.SpreadingFactor,
		Bandwidth:       r.tx.Bandwidth,
		CodingRate:      r.tx.CodingRate,
		Preamble:        r.tx.Preamble,
		FixedLength:     r.tx.FixedLength,
		CRC:             true,
	}
}

// Sleep aborts any operation in progress
func (r *SimRadio) Sleep() {
	r.mu.Lock()
	r.mode = modeSleep
	r.gen++
	r.mu.Unlock()
}

// Send publishes data on the medium. TxDone fires once the frame's time
// on air has elapsed, TxTimeout if that exceeds the configured timeout.
func (r *SimRadio) Send(data []byte) {
	r.mu.Lock()
	r.mode = modeTx
	r.gen++
	gen := r.gen
	airtime := r.txModem().TimeOnAir(len(data))
	timeout := r.tx.Timeout

	frame := &air.Frame{
		Sender:          r.id,
		Frequency:       r.freq,
		SpreadingFactor: uint32(r.tx.SpreadingFactor),
		Bandwidth:       uint32(r.tx.Bandwidth),
		CodingRate:      air.CodingRate(r.tx.CodingRate),
		Preamble:        uint32(r.tx.Preamble),
		FixedLength:     r.tx.FixedLength,
		Airtime:         airtime,
		Power:           int32(r.tx.Power),
		Payload:         append([]byte(nil), data...),
	}
	sock := r.pubSock
	r.mu.Unlock()

	if sock == nil {
		r.log.Error().Msg("send on radio that is not started")
		time.AfterFunc(0, func() { r.complete(gen, modeTx, r.onTxTimeout) })
		return
	}

	if err := sock.Send(zmq4.NewMsgFrom([]byte(air.Topic), air.Marshal(frame))); err != nil {
		r.log.Error().Err(err).Msg("failed to publish frame")
		time.AfterFunc(0, func() { r.complete(gen, modeTx, r.onTxTimeout) })
		return
	}

	r.log.Debug().
		Int("len", len(data)).
		Dur("airtime", airtime).
		Uint32("freq", frame.Frequency).
		Msg("frame sent")

	if timeout > 0 && airtime > timeout {
		time.AfterFunc(timeout, func() { r.complete(gen, modeTx, r.onTxTimeout) })
		return
	}
	time.AfterFunc(airtime, func() { r.complete(gen, modeTx, r.onTxDone) })
}

// Receive listens for a frame. A zero timeout listens until Sleep.
func (r *SimRadio) Receive(timeout time.Duration) {
	r.mu.Lock()
	r.mode = modeRx
	r.rxStart = time.Now()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	if timeout > 0 {
		time.AfterFunc(timeout, func() { r.complete(gen, modeRx, r.onRxTimeout) })
	}
}

// StartCAD samples the channel for two symbol times
func (r *SimRadio) StartCAD() {
	r.mu.Lock()
	r.mode = modeCAD
	r.gen++
	gen := r.gen
	d := time.Duration(2 * SymbolTime(r.rx.SpreadingFactor, r.rx.Bandwidth) * float64(time.Second))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	r.mu.Unlock()

	time.AfterFunc(d, func() {
		r.mu.Lock()
		if r.gen != gen || r.mode != modeCAD {
			r.mu.Unlock()
			return
		}
		busy := r.busyLocked(r.freq, time.Now())
		r.mode = modeSleep
		cb := r.events.CadDone
		r.mu.Unlock()

		if cb != nil {
			cb(busy)
		}
	})
}

// IsChannelFree reports whether no frame is currently on air on freq
func (r *SimRadio) IsChannelFree(freq uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.busyLocked(freq, time.Now())
}

// busyLocked must be called with mu held
func (r *SimRadio) busyLocked(freq uint32, now time.Time) bool {
	for _, f := range r.inAir {
		if f.frame.Frequency == freq && !now.Before(f.start) && now.Before(f.end) {
			return true
		}
	}
	return false
}

// complete runs cb if no other operation replaced the one identified by gen
func (r *SimRadio) complete(gen uint64, mode radioMode, cb func()) {
	r.mu.Lock()
	if r.gen != gen || r.mode != mode {
		r.mu.Unlock()
		return
	}
	r.mode = modeSleep
	r.mu.Unlock()
	cb()
}

func (r *SimRadio) onTxDone() {
	if cb := r.callbacks().TxDone; cb != nil {
		cb()
	}
}

func (r *SimRadio) onTxTimeout() {
	if cb := r.callbacks().TxTimeout; cb != nil {
		cb()
	}
}

func (r *SimRadio) onRxTimeout() {
	if cb := r.callbacks().RxTimeout; cb != nil {
		cb()
	}
}

func (r *SimRadio) callbacks() Events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

// eventLoop receives frames from the medium
func (r *SimRadio) eventLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		msg, err := r.subSock.Recv()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.log.Warn().Err(err).Msg("medium receive error")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if len(msg.Frames) < 2 || string(msg.Frames[0]) != air.Topic {
			continue
		}

		frame, err := air.Unmarshal(msg.Frames[1])
		if err != nil {
			r.log.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}
		if frame.Sender == r.id {
			continue
		}

		r.arrive(frame)
	}
}

// arrive records a frame as occupying the channel and schedules its
// delivery at the end of its airtime
func (r *SimRadio) arrive(frame *air.Frame) {
	now := time.Now()
	af := airFrame{frame: frame, start: now, end: now.Add(frame.Airtime)}

	r.mu.Lock()
	kept := r.inAir[:0]
	for _, f := range r.inAir {
		if now.Sub(f.end) < time.Second {
			kept = append(kept, f)
		}
	}
	r.inAir = append(kept, af)
	r.mu.Unlock()

	time.AfterFunc(frame.Airtime, func() { r.deliver(af) })
}

// deliver hands a frame to the receiver if the radio was listening on the
// right channel with matching modulation before the preamble ended
func (r *SimRadio) deliver(af airFrame) {
	r.mu.Lock()
	f := af.frame

	if r.mode != modeRx || f.Frequency != r.freq || f.SpreadingFactor != uint32(r.rx.SpreadingFactor) {
		r.mu.Unlock()
		return
	}

	preamble := time.Duration(PreambleDuration(uint16(f.Preamble), uint8(f.SpreadingFactor), uint8(f.Bandwidth))) * time.Millisecond
	if r.rxStart.After(af.start.Add(preamble)) {
		r.mu.Unlock()
		return
	}

	// implicit and explicit header modes do not sync with each other
	if f.FixedLength != r.rx.FixedLength {
		r.mu.Unlock()
		return
	}

	collided := false
	for _, other := range r.inAir {
		if other.frame == f || other.frame.Frequency != f.Frequency {
			continue
		}
		if other.start.Before(af.end) && af.start.Before(other.end) {
			collided = true
			break
		}
	}
	badLength := r.rx.FixedLength && len(f.Payload) != int(r.rx.PayloadLength)

	r.mode = modeSleep
	r.gen++
	events := r.events
	rssi, snr := r.config.RSSI, r.config.SNR
	r.mu.Unlock()

	if collided || badLength {
		r.log.Debug().Bool("collision", collided).Int("len", len(f.Payload)).Msg("frame lost")
		if events.RxError != nil {
			events.RxError()
		}
		return
	}

	if events.RxDone != nil {
		events.RxDone(f.Payload, rssi, snr)
	}
}
