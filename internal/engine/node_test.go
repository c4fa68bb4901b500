package engine

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/agsys/lowapp/internal/config"
)

func TestRuntimeFanOut(t *testing.T) {
	rt := NewRuntime(&MockRadio{}, config.NewMemoryStore(nil))

	var first, second []string
	rt.Subscribe(func(resp string) { first = append(first, resp) })
	rt.Subscribe(func(resp string) { second = append(second, resp) })

	rt.Respond("OK HELLO")
	rt.Respond("OK TX")

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("delivery mismatch: got %d and %d, want 2 and 2", len(first), len(second))
	}
	if first[1] != "OK TX" || second[0] != "OK HELLO" {
		t.Errorf("order mismatch: got %q and %q", first, second)
	}
}

func TestRuntimeDrivesCore(t *testing.T) {
	radio := &MockRadio{}
	rt := NewRuntime(radio, config.NewMemoryStore(testRecord(7)))

	var got []string
	rt.Subscribe(func(resp string) { got = append(got, resp) })

	c := New(rt, zerolog.Nop())
	c.Init()
	defer c.cad.Stop()
	c.Run()

	expectResponses(t, got, "BOOT OK")
	if st := c.Snapshot(); st.DeviceID != 7 || !st.Connected {
		t.Errorf("snapshot mismatch: got %+v", st)
	}
}
