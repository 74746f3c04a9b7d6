// Package diagnostics produces a readiness snapshot of the three
// capabilities going on duty depends on: network, store, and location.
package diagnostics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/device"
	"github.com/Vinith467/realtime-tracking/internal/store"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusChecking Status = "checking"
	StatusOK       Status = "ok"
	StatusError    Status = "error"
)

// State is transient and process-local; it is recomputed on demand, never
// persisted.
type State struct {
	Network  Status `json:"network"`
	Store    Status `json:"store"`
	Location Status `json:"location"`
	// LocationDenied distinguishes permission denial from timeout or
	// unavailability so callers can ask the user to grant permission.
	LocationDenied bool `json:"location_denied,omitempty"`
}

// Ready reports whether going on duty can proceed. Network is informational
// only: it reflects OS connectivity, not store health.
func (s State) Ready() bool {
	return s.Store == StatusOK && s.Location == StatusOK
}

type Prober struct {
	store   store.Store
	locator device.Locator
	conn    device.Connectivity
	timeout time.Duration
	log     zerolog.Logger
}

func NewProber(s store.Store, locator device.Locator, conn device.Connectivity, timeout time.Duration, log zerolog.Logger) *Prober {
	return &Prober{store: s, locator: locator, conn: conn, timeout: timeout, log: log}
}

// Probe runs the three checks concurrently. Each check mutates only its own
// field, so their relative order does not matter. Safe to re-invoke at any
// time; nothing is left subscribed.
func (p *Prober) Probe(ctx context.Context) State {
	state := State{Network: StatusChecking, Store: StatusChecking, Location: StatusChecking}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if p.conn != nil && p.conn.Online() {
			state.Network = StatusOK
		} else {
			state.Network = StatusError
		}
	}()

	go func() {
		defer wg.Done()
		if _, err := p.store.Query(ctx, store.Riders, nil, 1); err != nil {
			p.log.Warn().Err(err).Msg("store probe failed")
			state.Store = StatusError
		} else {
			state.Store = StatusOK
		}
	}()

	go func() {
		defer wg.Done()
		if p.locator == nil {
			state.Location = StatusError
			return
		}
		fixCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if _, err := p.locator.Current(fixCtx); err != nil {
			p.log.Warn().Err(err).Msg("location probe failed")
			state.Location = StatusError
			state.LocationDenied = errors.Is(err, device.ErrPermissionDenied)
		} else {
			state.Location = StatusOK
		}
	}()

	wg.Wait()
	return state
}
