package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOneShotFiresOnce(t *testing.T) {
	var n atomic.Int32
	done := make(chan struct{}, 4)

	tm := NewOneShot(func() {
		n.Add(1)
		done <- struct{}{}
	})
	tm.Start(5 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	time.Sleep(30 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Errorf("fire count mismatch: got %d, want 1", got)
	}
}

func TestStopSuppressesCallback(t *testing.T) {
	var n atomic.Int32
	tm := NewOneShot(func() { n.Add(1) })

	tm.Start(20 * time.Millisecond)
	tm.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Errorf("stopped timer fired %d times", got)
	}
}

func TestRestartReplacesExpiry(t *testing.T) {
	var n atomic.Int32
	tm := NewOneShot(func() { n.Add(1) })

	tm.Start(10 * time.Millisecond)
	tm.Start(200 * time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	if got := n.Load(); got != 0 {
		t.Errorf("replaced expiry fired %d times", got)
	}
	tm.Stop()
}

func TestRepeatingFiresUntilStopped(t *testing.T) {
	var n atomic.Int32
	tm := NewRepeating(func() { n.Add(1) })

	tm.Start(5 * time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	tm.Stop()

	if n.Load() < 3 {
		t.Fatalf("repeating timer fired %d times, want at least 3", n.Load())
	}

	// let a callback already past its check finish
	time.Sleep(10 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(30 * time.Millisecond)
	if got := n.Load(); got != stopped {
		t.Errorf("timer fired after Stop: %d -> %d", stopped, got)
	}
}
