package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validRecord() map[string]string {
	return map[string]string{
		KeyGatewayMask:  "00000000",
		KeyDeviceID:     "01",
		KeyGroupID:      "1234",
		KeyChannelID:    "00",
		KeyTxDatarate:   "07",
		KeyPreambleTime: "500",
		KeyEncKey:       "2B7E151628AED2A6ABF7158809CF4F3C",
	}
}

func TestCheckAttribute(t *testing.T) {
	tests := []struct {
		key   string
		val   string
		valid bool
	}{
		{KeyGatewayMask, "0000FFFF", true},
		{KeyGatewayMask, "FFFF", false},
		{KeyGatewayMask, "0000FFFG", false},
		{KeyDeviceID, "01", true},
		{KeyDeviceID, "FA", true},
		{KeyDeviceID, "FB", false},
		{KeyDeviceID, "00", false},
		{KeyDeviceID, "1", false},
		{KeyGroupID, "ABCD", true},
		{KeyGroupID, "ABC", false},
		{KeyChannelID, "F", true},
		{KeyChannelID, "0F", true},
		{KeyChannelID, "10", false},
		{KeyChannelID, "100", false},
		{KeyTxDatarate, "7", true},
		{KeyTxDatarate, "0C", true},
		{KeyTxDatarate, "06", false},
		{KeyTxDatarate, "0D", false},
		{KeyPreambleTime, "500", true},
		{KeyPreambleTime, "0", false},
		{KeyPreambleTime, "abc", false},
		{KeyEncKey, "2B7E151628AED2A6ABF7158809CF4F3C", true},
		{KeyEncKey, "00000000000000000000000000000000", false},
		{KeyEncKey, "2B7E15", false},
		{KeyPower, "14", false},
		{"bogus", "1", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			err := CheckAttribute(tt.key, tt.val)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidValue) {
				t.Errorf("got %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestLoadComplete(t *testing.T) {
	p, ch, err := Load(NewMemoryStore(validRecord()), DefaultParams())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if p.DeviceID != 1 {
		t.Errorf("DeviceID mismatch: got %d, want 1", p.DeviceID)
	}
	if p.GroupID != 0x1234 {
		t.Errorf("GroupID mismatch: got %04X, want 1234", p.GroupID)
	}
	if p.SpreadingFactor != 7 {
		t.Errorf("SpreadingFactor mismatch: got %d, want 7", p.SpreadingFactor)
	}
	if p.Key[0] != 0x2B || p.Key[15] != 0x3C {
		t.Errorf("Key mismatch: got %x", p.Key)
	}
	if !ch.Channel {
		t.Errorf("changes mismatch: got %+v", ch)
	}

	// reloading the same record changes nothing
	_, ch, err = Load(NewMemoryStore(validRecord()), p)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if ch.Channel {
		t.Errorf("unexpected changes on reload: %+v", ch)
	}
}

func TestLoadMissingAndInvalid(t *testing.T) {
	rec := validRecord()
	delete(rec, KeyEncKey)
	p, _, err := Load(NewMemoryStore(rec), DefaultParams())
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("got %v, want ErrKeyNotFound", err)
	}
	// other keys are still applied
	if p.DeviceID != 1 {
		t.Errorf("DeviceID mismatch: got %d, want 1", p.DeviceID)
	}

	rec = validRecord()
	rec[KeyPreambleTime] = "0"
	if _, _, err := Load(NewMemoryStore(rec), DefaultParams()); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("got %v, want ErrInvalidValue", err)
	}
}

func TestCheck(t *testing.T) {
	good, _, err := Load(NewMemoryStore(validRecord()), DefaultParams())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := Check(good, 494); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
		plen   uint16
	}{
		{name: "zero key", mutate: func(p *Params) { p.Key = [KeySize]byte{} }, plen: 494},
		{name: "zero preamble", mutate: func(p *Params) {}, plen: 0},
		{name: "device 0", mutate: func(p *Params) { p.DeviceID = 0 }, plen: 494},
		{name: "device 251", mutate: func(p *Params) { p.DeviceID = 251 }, plen: 494},
		{name: "sf 6", mutate: func(p *Params) { p.SpreadingFactor = 6 }, plen: 494},
		{name: "sf 13", mutate: func(p *Params) { p.SpreadingFactor = 13 }, plen: 494},
		{name: "unset channel", mutate: func(p *Params) { p.ChannelID = UnsetChannelID }, plen: 494},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good
			tt.mutate(&p)
			if err := Check(p, tt.plen); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	p, _, _ := Load(NewMemoryStore(validRecord()), DefaultParams())
	want := `{"chanId":"00","txDatarate":"07","bandwidth":"0","coderate":"1","power":"14","gwMask":"00000000","deviceId":"01","groupId":"1234","pTime":"00500"}`
	if got := p.Display(); got != want {
		t.Errorf("Display mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")

	s := NewFileStore(path)
	if err := s.Read(); err != nil {
		t.Fatalf("Read of missing file failed: %v", err)
	}
	if _, err := s.Get(KeyDeviceID); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("got %v, want ErrKeyNotFound", err)
	}

	s.Set(KeyDeviceID, "2A")
	if err := s.Write(); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// unsaved changes are lost on Read
	s.Set(KeyDeviceID, "2B")
	if err := s.Read(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	v, err := s.Get(KeyDeviceID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "2A" {
		t.Errorf("value mismatch: got %s, want 2A", v)
	}

	other := NewFileStore(path)
	if err := other.Read(); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if keys := other.Keys(); len(keys) != 1 || keys[0] != KeyDeviceID {
		t.Errorf("Keys mismatch: got %v", keys)
	}
}

func TestLoadNode(t *testing.T) {
	f, err := os.CreateTemp("", "lowapp-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(f.Name())

	f.WriteString(`
node:
  name: bench-1
log:
  level: debug
api:
  enabled: true
  jwt_secret: "0123456789abcdef0123"
`)
	f.Close()

	t.Setenv("LOWAPP_NATS_URL", "nats://127.0.0.1:4222")

	cfg, err := LoadNode(f.Name())
	if err != nil {
		t.Fatalf("LoadNode failed: %v", err)
	}
	if cfg.Node.Name != "bench-1" {
		t.Errorf("Name mismatch: got %s", cfg.Node.Name)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Errorf("NATS URL override not applied: got %s", cfg.NATS.URL)
	}
	if cfg.Medium.UplinkURL == "" || cfg.API.Addr == "" {
		t.Error("defaults not applied")
	}
}

func TestLoadNodeRejectsShortSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	os.WriteFile(path, []byte("api:\n  enabled: true\n  jwt_secret: short\n"), 0600)

	if _, err := LoadNode(path); err == nil {
		t.Error("expected validation error")
	}
}
