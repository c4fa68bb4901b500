package queue

import "sync"

// Sighting records the last time a peer was heard
type Sighting struct {
	DeviceID uint8  `json:"deviceId"`
	LastRSSI int16  `json:"lastRssi"`
	LastSeen uint64 `json:"lastSeen"` // milliseconds since boot
}

// StatTable keeps at most Capacity sightings, one per device. When full,
// a new device replaces the entry that was seen longest ago.
type StatTable struct {
	mu      sync.Mutex
	entries []Sighting
}

// Update records a sighting of s.DeviceID
func (t *StatTable) Update(s Sighting) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].DeviceID == s.DeviceID {
			t.entries[i] = s
			return
		}
	}

	if len(t.entries) < Capacity {
		t.entries = append(t.entries, s)
		return
	}

	oldest := 0
	for i := range t.entries {
		if t.entries[i].LastSeen < t.entries[oldest].LastSeen {
			oldest = i
		}
	}
	t.entries[oldest] = s
}

// Entries returns a copy of the table
func (t *StatTable) Entries() []Sighting {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sighting(nil), t.entries...)
}

// Len returns the number of tracked devices
func (t *StatTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear empties the table
func (t *StatTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}
