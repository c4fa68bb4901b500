package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/auth"
	"github.com/agsys/lowapp/internal/engine"
	"github.com/agsys/lowapp/internal/peer"
	"github.com/agsys/lowapp/internal/queue"
)

// MockCore records submitted lines
type MockCore struct {
	lines []string
	full  bool
}

func (m *MockCore) Snapshot() engine.Status {
	return engine.Status{State: "idle", Connected: true, DeviceID: 1, GroupID: 0x1234}
}

func (m *MockCore) Peers() map[uint8]peer.Record {
	return map[uint8]peer.Record{2: {OutTxSeq: 3, OutRxSeq: 3}}
}

func (m *MockCore) Who() []queue.Sighting {
	return []queue.Sighting{{DeviceID: 2, LastRSSI: -40, LastSeen: 1500}}
}

func (m *MockCore) SubmitAT(line string) error {
	if m.full {
		return engine.ErrQueueFull
	}
	m.lines = append(m.lines, line)
	return nil
}

const testSecret = "0123456789abcdef0123"

func setupTestServer(t *testing.T) (*Server, *MockCore, string) {
	t.Helper()

	mgr := auth.NewManager(testSecret, time.Hour)
	token, err := mgr.GenerateToken("test", "node-1")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	core := &MockCore{}
	return NewServer(core, mgr, zerolog.Nop()), core, token
}

func do(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestReadEndpoints(t *testing.T) {
	s, _, _ := setupTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/health", `"status":"ok"`},
		{"/api/v1/status", `"deviceId":1`},
		{"/api/v1/peers", `"2":{"outTxSeq":3,"outRxSeq":3,"inExpected":0}`},
		{"/api/v1/who", `"wholist":[{"deviceId":2,"lastRssi":-40,"lastSeen":1500}]`},
		{"/metrics", "lowapp_"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(s, http.MethodGet, tt.path, "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status mismatch: got %d, want %d", rec.Code, http.StatusOK)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestSubmitAT(t *testing.T) {
	s, core, token := setupTestServer(t)

	tests := []struct {
		name   string
		body   string
		token  string
		status int
	}{
		{"no token", "AT+HELLO", "", http.StatusUnauthorized},
		{"bad token", "AT+HELLO", "nope", http.StatusUnauthorized},
		{"empty", "  \r\n", token, http.StatusBadRequest},
		{"accepted", "AT+HELLO\r\n", token, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodPost, "/api/v1/at", tt.body, tt.token)
			if rec.Code != tt.status {
				t.Errorf("status mismatch: got %d, want %d", rec.Code, tt.status)
			}
		})
	}

	if len(core.lines) != 1 || core.lines[0] != "AT+HELLO" {
		t.Errorf("submitted lines mismatch: got %q", core.lines)
	}

	core.full = true
	if rec := do(s, http.MethodPost, "/api/v1/at", "AT+HELLO", token); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status mismatch: got %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestResponseLog(t *testing.T) {
	s, _, _ := setupTestServer(t)

	for i := 0; i < ResponseLogSize+6; i++ {
		s.Record(fmt.Sprintf("OK %d", i))
	}

	rec := do(s, http.MethodGet, "/api/v1/responses", "", "")
	var body struct {
		Responses []Response `json:"responses"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if len(body.Responses) != ResponseLogSize {
		t.Fatalf("length mismatch: got %d, want %d", len(body.Responses), ResponseLogSize)
	}
	if body.Responses[0].Payload != "OK 6" {
		t.Errorf("oldest mismatch: got %q, want %q", body.Responses[0].Payload, "OK 6")
	}
}
