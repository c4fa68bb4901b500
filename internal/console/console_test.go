package console

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/engine"
)

// MockCore records what the consoles submit
type MockCore struct {
	mu     sync.Mutex
	lines  []string
	errors int
	full   bool
	got    chan string
}

func newMockCore() *MockCore {
	return &MockCore{got: make(chan string, 16)}
}

func (m *MockCore) SubmitAT(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return engine.ErrQueueFull
	}
	m.lines = append(m.lines, line)
	m.got <- line
	return nil
}

func (m *MockCore) SubmitATError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	return nil
}

func TestSerialLines(t *testing.T) {
	long := "AT+SEND=02," + strings.Repeat("x", 400)
	in := strings.NewReader("AT+HELLO\r\n\r\n  \nat+who\n" + long + "\r\nAT+POLLRX")
	var out bytes.Buffer

	core := newMockCore()
	s := NewSerial(in, &out, core, zerolog.Nop())
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"AT+HELLO", "at+who", "AT+POLLRX"}
	if len(core.lines) != len(want) {
		t.Fatalf("lines mismatch: got %q, want %q", core.lines, want)
	}
	for i := range want {
		if core.lines[i] != want[i] {
			t.Errorf("line %d mismatch: got %q, want %q", i, core.lines[i], want[i])
		}
	}
	if core.errors != 1 {
		t.Errorf("overflow reports mismatch: got %d, want 1", core.errors)
	}
}

func TestSerialWrite(t *testing.T) {
	var out bytes.Buffer
	core := newMockCore()
	core.full = true

	s := NewSerial(strings.NewReader("AT+HELLO\n"), &out, core, zerolog.Nop())
	s.Write("BOOT OK")
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := "BOOT OK\r\n" + engine.FormatError(engine.CodeQueueFull, "AT queue full") + "\r\n"
	if out.String() != want {
		t.Errorf("output mismatch: got %q, want %q", out.String(), want)
	}
}

func TestRemoteConsole(t *testing.T) {
	upgrader := websocket.Upgrader{}
	replies := make(chan Message, 4)
	authHeader := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case authHeader <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(Message{Type: MsgTypeAT, ID: "1", Payload: "AT+HELLO"})
		conn.WriteJSON(Message{Type: MsgTypePing, ID: "2"})
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			replies <- msg
		}
	}))
	defer srv.Close()

	cfg := DefaultRemoteConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.AuthToken = "secret"
	cfg.InitialRetryDelay = 10 * time.Millisecond

	core := newMockCore()
	remote := NewRemote(cfg, core, zerolog.Nop())
	if err := remote.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer remote.Stop()

	select {
	case h := <-authHeader:
		if h != "Bearer secret" {
			t.Errorf("Authorization mismatch: got %q", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote never connected")
	}

	select {
	case line := <-core.got:
		if line != "AT+HELLO" {
			t.Errorf("line mismatch: got %q, want %q", line, "AT+HELLO")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not submitted")
	}

	pong := waitMessage(t, replies)
	if pong.Type != MsgTypePong || pong.ID != "2" {
		t.Errorf("pong mismatch: got %+v", pong)
	}

	remote.Send("OK HELLO")
	resp := waitMessage(t, replies)
	if resp.Type != MsgTypeResponse || resp.Payload != "OK HELLO" || resp.ID == "" {
		t.Errorf("response mismatch: got %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", resp.Timestamp, err)
	}
}

func waitMessage(t *testing.T, ch chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message from remote")
	}
	return Message{}
}
