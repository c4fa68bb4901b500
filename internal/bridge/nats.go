// Package bridge relays AT commands and responses over NATS.
package bridge

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Conn is the part of *nats.Conn the bridge uses
type Conn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
}

// Submitter accepts AT command lines for the core
type Submitter interface {
	SubmitAT(line string) error
}

// Subject returns the default subject prefix of a node
func Subject(groupID uint16, deviceID uint8) string {
	return fmt.Sprintf("lowapp.%04X.%02X", groupID, deviceID)
}

// NATS subscribes to <prefix>.at and publishes every response on
// <prefix>.resp
type NATS struct {
	nc     Conn
	core   Submitter
	prefix string
	log    zerolog.Logger
	sub    *nats.Subscription
}

// NewNATS creates a bridge
func NewNATS(nc Conn, core Submitter, prefix string, log zerolog.Logger) *NATS {
	return &NATS{
		nc:     nc,
		core:   core,
		prefix: prefix,
		log:    log.With().Str("component", "bridge").Str("prefix", prefix).Logger(),
	}
}

// Start subscribes to the command subject and blocks until ctx is done
func (b *NATS) Start(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.prefix+".at", b.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	b.sub = sub

	b.log.Info().Msg("NATS bridge started")

	<-ctx.Done()

	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	return ctx.Err()
}

// Publish sends a core response
func (b *NATS) Publish(resp string) {
	if err := b.nc.Publish(b.prefix+".resp", []byte(resp)); err != nil {
		b.log.Warn().Err(err).Msg("Failed to publish response")
	}
}

func (b *NATS) handleCommand(msg *nats.Msg) {
	b.log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received AT command")

	if err := b.core.SubmitAT(string(msg.Data)); err != nil {
		b.log.Error().Err(err).Msg("Command dropped")
	}
}
