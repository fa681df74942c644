package timer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitTick(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker was never created: %v", err)
	}
}

func TestTimerManager_OneShot(t *testing.T) {
	fc := clockwork.NewFakeClock()
	manager := NewTimerManager(fc, 100*time.Millisecond)
	defer manager.Stop()
	waitTick(t, fc)

	fired := make(chan struct{}, 1)
	manager.AddTimer(time.Second, 0, func() { fired <- struct{}{} })

	fc.Advance(500 * time.Millisecond)
	select {
	case <-fired:
		t.Fatal("Timer fired before its delay")
	case <-time.After(50 * time.Millisecond):
	}

	fc.Advance(600 * time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Expected timer to fire after its delay")
	}

	if manager.Pending() != 0 {
		t.Errorf("Expected no pending timers after a one-shot, got %d", manager.Pending())
	}
}

func TestTimerManager_RemoveTimer(t *testing.T) {
	fc := clockwork.NewFakeClock()
	manager := NewTimerManager(fc, 100*time.Millisecond)
	defer manager.Stop()

	id := manager.AddTimer(time.Second, 0, func() { t.Error("removed timer fired") })
	manager.AddTimer(time.Hour, 0, func() {})

	manager.RemoveTimer(id)
	if manager.Pending() != 1 {
		t.Fatalf("Expected 1 pending timer, got %d", manager.Pending())
	}
}

func TestTimerManager_Repeating(t *testing.T) {
	manager := NewTimerManager(clockwork.NewRealClock(), 5*time.Millisecond)
	defer manager.Stop()

	fired := make(chan struct{}, 10)
	manager.AddTimer(0, 10*time.Millisecond, func() { fired <- struct{}{} })

	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("Expected repeating timer to fire %d times, got %d", 3, i)
		}
	}
}

func TestTimerManager_StopIsIdempotent(t *testing.T) {
	manager := NewTimerManager(nil, 0)
	manager.Stop()
	manager.Stop()
}
