// Package config holds the node's configuration record (the key-value
// store behind the AT configuration commands), its validation rules, and
// the process configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Configuration record keys
const (
	KeyChannelID    = "chanId"
	KeyTxDatarate   = "txDatarate"
	KeyBandwidth    = "bandwidth"
	KeyCodingRate   = "coderate"
	KeyPower        = "power"
	KeyGatewayMask  = "gwMask"
	KeyDeviceID     = "deviceId"
	KeyGroupID      = "groupId"
	KeyPreambleTime = "pTime"
	KeyEncKey       = "encKey"
)

// ErrKeyNotFound is returned by Get for a key that was never set
var ErrKeyNotFound = errors.New("configuration key not found")

// Store is the configuration record collaborator. Get and Set work on the
// in-memory copy; Read reloads it from persistence and Write saves it.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Read() error
	Write() error
}

// FileStore keeps the record in memory and persists it as a flat YAML map.
// An empty path keeps the record in memory only.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFileStore creates a store persisted at path
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		values: make(map[string]string),
	}
}

// NewMemoryStore creates a store seeded with values and no persistence
func NewMemoryStore(values map[string]string) *FileStore {
	s := NewFileStore("")
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

func (s *FileStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Keys returns the stored keys in sorted order
func (s *FileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Read replaces the in-memory record with the persisted one. A missing
// file leaves an empty record.
func (s *FileStore) Read() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.values = make(map[string]string)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config record: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse config record: %w", err)
	}

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

// Write persists the in-memory record
func (s *FileStore) Write() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	data, err := yaml.Marshal(s.values)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode config record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace config record: %w", err)
	}
	return nil
}
