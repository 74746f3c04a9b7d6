// Package device declares the host capabilities the field agent depends on:
// positioning, screen retention, connectivity, and visibility signals. The
// core never talks to hardware directly; implementations are injected
// (internal/device/sim ships a route-playback locator for riderd).
package device

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is fatal to arming a watcher.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrUnavailable is a transient single-fix failure.
	ErrUnavailable = errors.New("position unavailable")
	// ErrTimeout is a transient single-fix timeout.
	ErrTimeout = errors.New("position request timed out")
	// ErrUnsupported means the host has no positioning capability at all.
	ErrUnsupported = errors.New("positioning not supported")
)

// Fix is one raw position sample as the provider delivered it. Speed and
// accuracy are provider-supplied and may be absent.
type Fix struct {
	Lat       float64
	Lng       float64
	SpeedMps  *float64
	AccuracyM *float64
	At        time.Time
}

// Subscription is a cancellable handle. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// Locator is the positioning capability. Current is a one-shot fresh-fix
// read bounded by ctx. Watch opens a continuous subscription; fixes and
// per-fix errors arrive on the given callbacks until the handle is
// cancelled.
type Locator interface {
	Current(ctx context.Context) (Fix, error)
	Watch(onFix func(Fix), onError func(error)) (Subscription, error)
}

// ScreenLock keeps the host display awake while held.
type ScreenLock interface {
	Acquire() error
	Release()
}

// Connectivity reflects OS-level network state, not store health.
type Connectivity interface {
	Online() bool
}

// Visibility notifies when the host app returns to the foreground.
type Visibility interface {
	Subscribe(onVisible func()) Subscription
}

// SubscriptionFunc adapts a plain cancel function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() { f() }
