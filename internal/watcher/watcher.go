// Package watcher produces a steady stream of position samples while armed.
// A continuous provider subscription does the normal work; a heartbeat timer
// forces a one-shot fix through the same handler when the provider goes
// silent (some hosts stop delivering continuous updates after backgrounding).
package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/device"
)

// Sink receives every successful fix, from either the continuous
// subscription or a heartbeat-forced read.
type Sink func(device.Fix)

type Watcher struct {
	locator    device.Locator
	screen     device.ScreenLock
	visibility device.Visibility
	heartbeat  time.Duration
	fixTimeout time.Duration
	log        zerolog.Logger

	mu       sync.Mutex
	armed    bool
	sink     Sink
	onFatal  func(error)
	watchSub device.Subscription
	visSub   device.Subscription
	stopHB   chan struct{}
	lastFix  time.Time
}

func New(locator device.Locator, screen device.ScreenLock, visibility device.Visibility, heartbeat, fixTimeout time.Duration, log zerolog.Logger) *Watcher {
	return &Watcher{
		locator:    locator,
		screen:     screen,
		visibility: visibility,
		heartbeat:  heartbeat,
		fixTimeout: fixTimeout,
		log:        log,
	}
}

// Armed reports whether the watcher currently owns a live subscription.
func (w *Watcher) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// Arm opens the continuous subscription, acquires the screen lock, and
// starts the heartbeat. Permission denial (or a missing locator) is fatal:
// the error is returned and the watcher stays disarmed. onFatal fires on its
// own goroutine if the provider reports an unrecoverable error; the watcher
// disarms itself first.
func (w *Watcher) Arm(ctx context.Context, sink Sink, onFatal func(error)) error {
	if w.locator == nil {
		return device.ErrUnsupported
	}

	w.mu.Lock()
	if w.armed {
		w.mu.Unlock()
		return nil
	}
	w.armed = true
	w.sink = sink
	w.onFatal = onFatal
	w.lastFix = time.Now()
	w.mu.Unlock()

	// the provider may deliver synchronously, so subscribe outside the lock
	sub, err := w.locator.Watch(w.handleFix, w.handleWatchError)
	if err != nil {
		w.mu.Lock()
		w.armed = false
		w.sink, w.onFatal = nil, nil
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	if !w.armed { // disarmed while arming
		w.mu.Unlock()
		sub.Cancel()
		return nil
	}
	w.watchSub = sub
	if w.visibility != nil {
		w.visSub = w.visibility.Subscribe(w.handleVisible)
	}
	w.stopHB = make(chan struct{})
	go w.heartbeatLoop(w.stopHB)
	w.mu.Unlock()

	if w.screen != nil {
		if err := w.screen.Acquire(); err != nil {
			// denied retention is not fatal; retried on visibility
			w.log.Warn().Err(err).Msg("screen lock denied")
		}
	}

	w.log.Info().Msg("watcher armed")
	return nil
}

// Disarm cancels the subscription, stops the heartbeat, and releases the
// screen lock. Every exit path, error or clean, releases everything; in-flight
// callbacks that have not fired yet are suppressed by the armed flag.
func (w *Watcher) Disarm() {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return
	}
	w.armed = false
	w.sink = nil
	w.onFatal = nil
	watchSub, visSub, stopHB := w.watchSub, w.visSub, w.stopHB
	w.watchSub, w.visSub, w.stopHB = nil, nil, nil
	w.mu.Unlock()

	if watchSub != nil {
		watchSub.Cancel()
	}
	if stopHB != nil {
		close(stopHB)
	}
	if visSub != nil {
		visSub.Cancel()
	}
	if w.screen != nil {
		w.screen.Release()
	}
	w.log.Info().Msg("watcher disarmed")
}

// handleFix is the single success path for continuous and heartbeat fixes.
// The armed check happens at callback time to close the race between Disarm
// and an already-scheduled delivery.
func (w *Watcher) handleFix(fix device.Fix) {
	w.mu.Lock()
	if !w.armed {
		w.mu.Unlock()
		return
	}
	w.lastFix = time.Now()
	sink := w.sink
	w.mu.Unlock()

	sink(fix)
}

func (w *Watcher) handleWatchError(err error) {
	if errors.Is(err, device.ErrPermissionDenied) || errors.Is(err, device.ErrUnsupported) {
		w.mu.Lock()
		onFatal := w.onFatal
		armed := w.armed
		w.mu.Unlock()
		if !armed {
			return
		}

		w.log.Error().Err(err).Msg("watch failed fatally")
		w.Disarm()
		if onFatal != nil {
			// a provider may report fatally from inside Watch, while the
			// caller of Arm still holds locks that onFatal needs
			go onFatal(err)
		}
		return
	}

	// transient fix errors never stop the subscription; the heartbeat
	// recovers eventually
	w.log.Debug().Err(err).Msg("transient fix error")
}

func (w *Watcher) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			stalled := w.armed && time.Since(w.lastFix) >= w.heartbeat
			w.mu.Unlock()
			if !stalled {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), w.fixTimeout)
			fix, err := w.locator.Current(ctx)
			cancel()
			if err != nil {
				w.handleWatchError(err)
				continue
			}
			w.handleFix(fix)
		}
	}
}

// handleVisible re-requests the screen lock after the host revoked it,
// without restarting the position subscription.
func (w *Watcher) handleVisible() {
	w.mu.Lock()
	armed := w.armed
	w.mu.Unlock()
	if !armed || w.screen == nil {
		return
	}
	if err := w.screen.Acquire(); err != nil {
		w.log.Warn().Err(err).Msg("screen lock re-acquire denied")
	}
}
