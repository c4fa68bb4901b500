package console

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Inbound
	MsgTypeAT   MessageType = "at"
	MsgTypePing MessageType = "ping"

	// Outbound
	MsgTypeResponse MessageType = "response"
	MsgTypePong     MessageType = "pong"
)

// Message is a WebSocket message to or from the operator service
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Payload   string      `json:"payload,omitempty"`
}

// RemoteConfig holds remote console configuration
type RemoteConfig struct {
	URL       string // ws:// or wss:// endpoint
	AuthToken string // sent as a bearer token on the handshake
	NodeName  string

	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// Reconnection settings (exponential backoff)
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64
	JitterPercent     float64
}

// DefaultRemoteConfig returns default remote console configuration
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		InitialRetryDelay: 1 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.25,
	}
}

// Remote carries AT commands from a WebSocket peer to the core and sends
// every core response back. It reconnects until stopped.
type Remote struct {
	config    RemoteConfig
	core      Submitter
	log       zerolog.Logger
	conn      *websocket.Conn
	sendChan  chan *Message
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	connected bool

	currentRetryDelay time.Duration
}

// NewRemote creates a remote console
func NewRemote(config RemoteConfig, core Submitter, log zerolog.Logger) *Remote {
	return &Remote{
		config:            config,
		core:              core,
		log:               log.With().Str("component", "remote").Logger(),
		sendChan:          make(chan *Message, 100),
		stopChan:          make(chan struct{}),
		currentRetryDelay: config.InitialRetryDelay,
	}
}

// Start runs the connection loop in the background
func (c *Remote) Start(ctx context.Context) error {
	c.wg.Add(1)
	go c.connectionLoop(ctx)
	return nil
}

// Stop disconnects and stops all loops
func (c *Remote) Stop() error {
	close(c.stopChan)
	c.wg.Wait()
	return nil
}

// IsConnected returns whether the WebSocket is connected
func (c *Remote) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send queues a core response for the peer. Responses produced while
// disconnected are dropped.
func (c *Remote) Send(resp string) {
	if !c.IsConnected() {
		return
	}
	c.enqueue(&Message{
		Type:      MsgTypeResponse,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   resp,
	})
}

func (c *Remote) enqueue(msg *Message) {
	select {
	case c.sendChan <- msg:
	default:
		c.log.Warn().Str("type", string(msg.Type)).Msg("Send queue full, dropping message")
	}
}

func (c *Remote) connectionLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			c.disconnect()
			return
		case <-ctx.Done():
			c.disconnect()
			return
		default:
		}

		if err := c.connect(); err != nil {
			c.log.Warn().Err(err).Msg("Failed to connect remote console")
			if !c.waitWithBackoff(ctx) {
				return
			}
			continue
		}

		c.currentRetryDelay = c.config.InitialRetryDelay

		c.runMessageLoops(ctx)
		c.disconnect()

		c.log.Info().Msg("Remote console disconnected, reconnecting")
		if !c.waitWithBackoff(ctx) {
			return
		}
	}
}

// waitWithBackoff waits for the current retry delay with jitter. It
// returns false if the remote was stopped meanwhile.
func (c *Remote) waitWithBackoff(ctx context.Context) bool {
	jitter := c.currentRetryDelay.Seconds() * c.config.JitterPercent * (rand.Float64()*2 - 1)
	delay := c.currentRetryDelay + time.Duration(jitter*float64(time.Second))

	c.currentRetryDelay = time.Duration(float64(c.currentRetryDelay) * c.config.BackoffMultiplier)
	if c.currentRetryDelay > c.config.MaxRetryDelay {
		c.currentRetryDelay = c.config.MaxRetryDelay
	}

	select {
	case <-time.After(delay):
		return true
	case <-c.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Remote) connect() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	if c.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	if c.config.NodeName != "" {
		header.Set("X-Node-Name", c.config.NodeName)
	}

	conn, _, err := dialer.Dial(c.config.URL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log.Info().Str("url", c.config.URL).Msg("Remote console connected")
	return nil
}

func (c *Remote) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

func (c *Remote) runMessageLoops(ctx context.Context) {
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.readLoop(done)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, done)
		// unblock the reader
		c.disconnect()
	}()

	wg.Wait()
}

func (c *Remote) readLoop(done chan struct{}) {
	defer close(done)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("Failed to parse message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Remote) writeLoop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return

		case msg := <-c.sendChan:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				continue
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("Failed to marshal message")
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn().Err(err).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn().Err(err).Msg("Ping failed")
				return
			}
		}
	}
}

func (c *Remote) handleMessage(msg *Message) {
	switch msg.Type {
	case MsgTypeAT:
		if err := c.core.SubmitAT(msg.Payload); err != nil {
			c.log.Error().Err(err).Str("id", msg.ID).Msg("Remote command dropped")
		}
	case MsgTypePing:
		c.enqueue(&Message{
			Type:      MsgTypePong,
			ID:        msg.ID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	default:
		c.log.Debug().Str("type", string(msg.Type)).Msg("Unknown message type")
	}
}
