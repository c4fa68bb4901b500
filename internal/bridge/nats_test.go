package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// MockConn delivers messages to the registered handler synchronously
type MockConn struct {
	handlers  map[string]nats.MsgHandler
	published map[string][]string
	ready     chan struct{}
	fail      bool
}

func newMockConn() *MockConn {
	return &MockConn{
		handlers:  make(map[string]nats.MsgHandler),
		published: make(map[string][]string),
		ready:     make(chan struct{}),
	}
}

func (m *MockConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if m.fail {
		return nil, errors.New("not connected")
	}
	m.handlers[subj] = cb
	close(m.ready)
	return nil, nil
}

func (m *MockConn) Publish(subj string, data []byte) error {
	m.published[subj] = append(m.published[subj], string(data))
	return nil
}

type MockCore struct {
	lines []string
}

func (m *MockCore) SubmitAT(line string) error {
	m.lines = append(m.lines, line)
	return nil
}

func TestSubject(t *testing.T) {
	if got := Subject(0x1234, 0x0A); got != "lowapp.1234.0A" {
		t.Errorf("Subject mismatch: got %q, want %q", got, "lowapp.1234.0A")
	}
}

func TestBridge(t *testing.T) {
	nc := newMockConn()
	core := &MockCore{}
	b := NewNATS(nc, core, "lowapp.1234.01", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	select {
	case <-nc.ready:
	case <-time.After(time.Second):
		t.Fatal("bridge did not subscribe")
	}

	nc.handlers["lowapp.1234.01.at"](&nats.Msg{Subject: "lowapp.1234.01.at", Data: []byte("AT+WHO")})
	b.Publish(`OK {"wholist":[]}`)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start error mismatch: got %v, want %v", err, context.Canceled)
	}

	if len(core.lines) != 1 || core.lines[0] != "AT+WHO" {
		t.Errorf("lines mismatch: got %q", core.lines)
	}
	if got := nc.published["lowapp.1234.01.resp"]; len(got) != 1 || got[0] != `OK {"wholist":[]}` {
		t.Errorf("published mismatch: got %q", got)
	}
}

func TestBridgeSubscribeError(t *testing.T) {
	nc := newMockConn()
	nc.fail = true

	b := NewNATS(nc, &MockCore{}, "lowapp.1234.01", zerolog.Nop())
	if err := b.Start(context.Background()); err == nil {
		t.Error("expected subscribe error")
	}
}
