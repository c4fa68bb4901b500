// Package engine runs the LoWAPP protocol core: a single-threaded state
// machine fed by a hot queue of radio and timer events and a cold queue of
// host requests.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/atcmd"
	"github.com/agsys/lowapp/internal/clock"
	"github.com/agsys/lowapp/internal/config"
	"github.com/agsys/lowapp/internal/lora"
	"github.com/agsys/lowapp/internal/peer"
	"github.com/agsys/lowapp/internal/protocol"
	"github.com/agsys/lowapp/internal/queue"
	"github.com/agsys/lowapp/internal/storage"
	"github.com/agsys/lowapp/internal/telemetry"
)

// ErrTransitionLoop is logged when a single event drives more state
// changes than maxTransitions
var ErrTransitionLoop = errors.New("state transition loop")

// ErrQueueFull is returned by SubmitAT when the command cannot be queued
var ErrQueueFull = fmt.Errorf("at command: %w", queue.ErrFull)

// System gives the core access to its collaborators. NewTimer and
// NewTicker must not call fn synchronously.
type System interface {
	Radio() lora.Radio
	Store() config.Store
	NewTimer(fn func()) clock.Timer
	NewTicker(fn func()) clock.Timer
	Respond(resp string)
	Now() time.Time
}

// Journal receives a copy of protocol activity. Errors are logged and
// otherwise ignored.
type Journal interface {
	InsertRxPacket(p *storage.RxPacket) (int64, error)
	InsertTxReport(r *storage.TxReport) (int64, error)
	UpsertSighting(s *storage.Sighting) error
}

// OpMode selects how received packets reach the host
type OpMode int

const (
	ModePull OpMode = iota // host polls with AT+POLLRX
	ModePush               // packets are emitted on every Idle entry
)

func (m OpMode) String() string {
	if m == ModePush {
		return "push"
	}
	return "pull"
}

// RxPacket is a standard message waiting for the host
type RxPacket struct {
	SrcID     uint8
	DestID    uint8
	RSSI      int16
	SNR       int8
	Duplicate bool
	Missing   uint8
	Payload   []byte
}

type atLine struct {
	text    string
	tooLong bool
}

// Context is the protocol core of one node. All protocol state is owned
// by Run; the submit methods and Snapshot may be called from any goroutine.
type Context struct {
	sys     System
	radio   lora.Radio
	store   config.Store
	log     zerolog.Logger
	journal Journal

	mu    sync.Mutex
	state State
	hot   queue.Events
	cold  queue.Events
	at    queue.Ring[atLine]
	tx    queue.Ring[*protocol.Message]
	rx    queue.Ring[RxPacket]
	stats queue.StatTable
	peers peer.Table

	params   config.Params
	codec    *protocol.Codec
	timing   Timing
	timedFor modulation

	connected bool
	cadFlag   atomic.Bool
	txBlocked atomic.Bool
	opMode    OpMode

	txFrame       []byte
	txFrameFilled bool
	retry         int
	lastDest      uint8
	ackMsg        *protocol.Message
	resetPending  bool

	rng   *rand.Rand
	boot  time.Time
	timer clock.Timer // generic state timeout
	unblk clock.Timer // transmit unblock
	cad   clock.Timer // periodic channel activity detection

	faults uint64 // transition loops cut short

	// enterHook replaces the entry actions when set
	enterHook func(State) State

	wake chan struct{}
}

// New creates a protocol core. Init must be called before Run.
func New(sys System, log zerolog.Logger) *Context {
	return &Context{
		sys:    sys,
		radio:  sys.Radio(),
		store:  sys.Store(),
		log:    log.With().Str("component", "engine").Logger(),
		params: config.DefaultParams(),
		wake:   make(chan struct{}, 1),
	}
}

// SetJournal attaches a journal. Must be called before Init.
func (c *Context) SetJournal(j Journal) {
	c.journal = j
}

// Wake is signalled whenever an event is queued
func (c *Context) Wake() <-chan struct{} {
	return c.wake
}

// Init registers the radio callbacks, creates the timers, loads the
// configuration record and queues the start of the state machine.
func (c *Context) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.radio.Init(lora.Events{
		TxDone:    c.onTxDone,
		TxTimeout: c.onTxTimeout,
		RxDone:    c.onRxDone,
		RxError:   c.onRxError,
		RxTimeout: c.onRxTimeout,
		CadDone:   c.onCadDone,
	})

	c.timer = c.sys.NewTimer(c.onTimeout)
	c.unblk = c.sys.NewTimer(c.onUnblock)
	c.cad = c.sys.NewTicker(c.onCadTick)
	c.boot = c.sys.Now()

	c.initialise()
}

// initialise reads the record, decides whether the node may connect and
// resets the core. Shared by Init and ATZ.
func (c *Context) initialise() {
	c.params = config.DefaultParams()
	c.timing = Timing{}
	c.setConnected(false)
	c.cadFlag.Store(false)
	c.txBlocked.Store(false)
	c.timer.Stop()
	c.unblk.Stop()

	if err := c.store.Read(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to read configuration record")
	}

	err := c.loadConfig()
	if err == nil {
		err = config.Check(c.params, c.timing.PreambleLen)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Node not configured, staying disconnected")
		c.respondError(CodeLoadConfig, "Missing or incomplete configuration")
	} else {
		c.setConnected(true)
		c.respond("BOOT OK")
	}

	c.coreInit()
}

// coreInit clears every queue and peer record and queues entry into Restart
func (c *Context) coreInit() {
	c.hot.Clear()
	c.cold.Clear()
	c.at.Clear()
	c.tx.Clear()
	c.rx.Clear()
	c.stats.Clear()
	c.peers.Reset()

	c.txFrame = nil
	c.txFrameFilled = false
	c.retry = 0
	c.ackMsg = nil
	c.opMode = ModePull
	c.lastDest = c.params.DeviceID
	c.rng = rand.New(rand.NewSource(int64(c.radio.Random())))

	c.state = StateRestart
	c.hot.Push(queue.Event{Kind: queue.EventStateEnter})
	c.signal()
}

func (c *Context) setConnected(connected bool) {
	c.connected = connected
	if connected {
		c.cad.Start(c.timing.CADInterval)
	} else {
		c.cad.Stop()
	}
	telemetry.SetConnected(connected)
}

// signal wakes the run loop without blocking
func (c *Context) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// post queues an event on the hot or cold queue. Events posted to a full
// queue are dropped.
func (c *Context) post(q *queue.Events, name string, evt queue.Event) {
	if _, err := q.Push(evt); err != nil {
		telemetry.QueueDrops.WithLabelValues(name).Inc()
		c.log.Error().Err(err).Str("queue", name).Stringer("event", evt.Kind).Msg("Event dropped")
		return
	}
	c.signal()
}

func (c *Context) postHot(kind queue.EventKind, data any) {
	c.post(&c.hot, "hot", queue.Event{Kind: kind, Data: data})
}

func (c *Context) postCold(kind queue.EventKind) {
	c.post(&c.cold, "cold", queue.Event{Kind: kind})
}

// SubmitAT queues a command line received from the host
func (c *Context) SubmitAT(line string) error {
	entry := atLine{text: line}
	if len(line) > atcmd.MaxLineLength {
		entry = atLine{tooLong: true}
	}
	return c.submit(entry)
}

// SubmitATError queues a report for a line the console had to discard
// because it exceeded its buffer
func (c *Context) SubmitATError() error {
	return c.submit(atLine{tooLong: true})
}

func (c *Context) submit(entry atLine) error {
	if _, err := c.at.Push(entry); err != nil {
		telemetry.QueueDrops.WithLabelValues("at").Inc()
		return ErrQueueFull
	}
	c.postCold(queue.EventATCommand)
	return nil
}

// millis returns the time since boot in milliseconds
func (c *Context) millis() uint64 {
	return uint64(c.sys.Now().Sub(c.boot) / time.Millisecond)
}
