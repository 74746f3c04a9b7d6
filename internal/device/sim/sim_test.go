package sim

import (
	"context"
	"testing"
	"time"

	"github.com/Vinith467/realtime-tracking/internal/device"
)

func TestCurrentAdvancesRoute(t *testing.T) {
	l := NewLocator(nil, 100*time.Millisecond)

	first, err := l.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	second, err := l.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if first.Lat == second.Lat && first.Lng == second.Lng {
		t.Fatalf("expected route to advance")
	}
	if second.SpeedMps == nil || *second.SpeedMps <= 0 {
		t.Fatalf("expected derived speed")
	}
}

func TestCurrentCancelled(t *testing.T) {
	l := NewLocator(nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Current(ctx); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}

func TestWatchDeliversAndCancels(t *testing.T) {
	l := NewLocator(nil, 10*time.Millisecond)

	fixes := make(chan device.Fix, 16)
	sub, err := l.Watch(func(f device.Fix) { fixes <- f }, func(error) {})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	select {
	case <-fixes:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for fix")
	}

	sub.Cancel()
	sub.Cancel() // idempotent

	// drain anything already in flight, then expect silence
	time.Sleep(30 * time.Millisecond)
	for len(fixes) > 0 {
		<-fixes
	}
	select {
	case <-fixes:
		t.Fatalf("unexpected fix after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScreenLockBalance(t *testing.T) {
	var lock ScreenLock
	if err := lock.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lock.Held() != 1 {
		t.Fatalf("expected held lock")
	}
	lock.Release()
	lock.Release() // extra release must not underflow
	if lock.Held() != 0 {
		t.Fatalf("expected released lock")
	}
}
