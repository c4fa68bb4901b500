package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/clock"
	"github.com/agsys/lowapp/internal/config"
	"github.com/agsys/lowapp/internal/lora"
)

// Runtime is the System backed by real timers. Responses are fanned out
// to every subscriber in subscription order.
type Runtime struct {
	radio lora.Radio
	store config.Store

	mu   sync.RWMutex
	subs []func(string)
}

// NewRuntime creates a runtime around a radio and a configuration store
func NewRuntime(radio lora.Radio, store config.Store) *Runtime {
	return &Runtime{radio: radio, store: store}
}

func (r *Runtime) Radio() lora.Radio               { return r.radio }
func (r *Runtime) Store() config.Store             { return r.store }
func (r *Runtime) NewTimer(fn func()) clock.Timer  { return clock.NewOneShot(fn) }
func (r *Runtime) NewTicker(fn func()) clock.Timer { return clock.NewRepeating(fn) }
func (r *Runtime) Now() time.Time                  { return time.Now() }

// Subscribe registers fn to receive every response. fn runs on the core's
// goroutine and must not block or call back into the core.
func (r *Runtime) Subscribe(fn func(resp string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Respond delivers resp to the subscribers
func (r *Runtime) Respond(resp string) {
	r.mu.RLock()
	subs := r.subs
	r.mu.RUnlock()

	for _, fn := range subs {
		fn(resp)
	}
}

// Node drives a Context from its own goroutine
type Node struct {
	core     *Context
	log      zerolog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewNode creates a node around an initialised-on-start core
func NewNode(core *Context, log zerolog.Logger) *Node {
	return &Node{
		core:     core,
		log:      log.With().Str("component", "node").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Core returns the protocol core
func (n *Node) Core() *Context {
	return n.core
}

// Start initialises the core and runs it until ctx is done or Stop is called
func (n *Node) Start(ctx context.Context) error {
	n.core.Init()

	n.wg.Add(1)
	go n.loop(ctx)

	n.log.Info().Msg("Node started")
	return nil
}

// Stop stops the run loop and puts the radio to sleep
func (n *Node) Stop() error {
	close(n.stopChan)
	n.wg.Wait()
	n.core.radio.Sleep()
	n.log.Info().Msg("Node stopped")
	return nil
}

func (n *Node) loop(ctx context.Context) {
	defer n.wg.Done()

	for {
		res := n.core.Run()
		n.log.Trace().Stringer("result", res).Msg("Run")

		select {
		case <-ctx.Done():
			return
		case <-n.stopChan:
			return
		case <-n.core.Wake():
		}
	}
}
