package lora

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/lora/air"
)

// MediumConfig holds the endpoints of the shared medium
type MediumConfig struct {
	InURL  string // SUB, radios publish here
	OutURL string // PUB, radios subscribe here
}

// DefaultMediumConfig returns the endpoints matching DefaultSimConfig
func DefaultMediumConfig() MediumConfig {
	return MediumConfig{
		InURL:  "tcp://*:7701",
		OutURL: "tcp://*:7702",
	}
}

// Medium forwards every frame published by a simulated radio to all of
// them, playing the role of the air between nodes.
type Medium struct {
	config    MediumConfig
	log       zerolog.Logger
	inSock    zmq4.Socket
	outSock   zmq4.Socket
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	forwarded atomic.Uint64
}

// NewMedium creates a medium forwarder
func NewMedium(config MediumConfig, logger zerolog.Logger) *Medium {
	ctx, cancel := context.WithCancel(context.Background())
	return &Medium{
		config: config,
		log:    logger.With().Str("component", "medium").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds both sockets and starts forwarding
func (m *Medium) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("medium already running")
	}
	m.running = true
	m.mu.Unlock()

	m.inSock = zmq4.NewSub(m.ctx)
	if err := m.inSock.Listen(m.config.InURL); err != nil {
		return fmt.Errorf("failed to bind input socket: %w", err)
	}
	if err := m.inSock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		m.inSock.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	m.outSock = zmq4.NewPub(m.ctx)
	if err := m.outSock.Listen(m.config.OutURL); err != nil {
		m.inSock.Close()
		return fmt.Errorf("failed to bind output socket: %w", err)
	}

	m.wg.Add(1)
	go m.forwardLoop()

	m.log.Info().Str("in", m.config.InURL).Str("out", m.config.OutURL).Msg("medium started")
	return nil
}

// Stop closes both sockets
func (m *Medium) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	if m.inSock != nil {
		m.inSock.Close()
	}
	m.wg.Wait()
	if m.outSock != nil {
		m.outSock.Close()
	}

	m.log.Info().Uint64("forwarded", m.forwarded.Load()).Msg("medium stopped")
	return nil
}

// Forwarded returns the number of frames relayed so far
func (m *Medium) Forwarded() uint64 {
	return m.forwarded.Load()
}

func (m *Medium) forwardLoop() {
	defer m.wg.Done()

	for {
		msg, err := m.inSock.Recv()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.log.Warn().Err(err).Msg("receive error")
			continue
		}

		if err := m.outSock.Send(msg); err != nil {
			m.log.Error().Err(err).Msg("failed to forward frame")
			continue
		}
		m.forwarded.Add(1)

		if m.log.GetLevel() <= zerolog.DebugLevel && len(msg.Frames) > 1 {
			if f, err := air.Unmarshal(msg.Frames[1]); err == nil {
				m.log.Debug().
					Str("sender", f.Sender).
					Uint32("freq", f.Frequency).
					Uint32("sf", f.SpreadingFactor).
					Dur("airtime", f.Airtime).
					Int("len", len(f.Payload)).
					Msg("frame forwarded")
			}
		}
	}
}
