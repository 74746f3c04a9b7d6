// Package session owns the duty state machine: Offline -> Checking ->
// Online, with Error reachable from Checking or Online and Offline
// reachable from anywhere via an explicit stop. Going online either fully
// succeeds (watcher armed, session record exists) or fully fails back to a
// stable state; a "watching but no session" limbo is never exposed.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/device"
	"github.com/Vinith467/realtime-tracking/internal/diagnostics"
	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/telemetry"
	"github.com/Vinith467/realtime-tracking/internal/watcher"
)

var (
	// ErrValidation covers locally rejected commands; state is unchanged.
	ErrValidation = errors.New("validation failed")
	// ErrChecksFailed means diagnostics still report an error after a
	// re-probe; the watcher is never armed.
	ErrChecksFailed = errors.New("system checks failed")
)

// Policy carries the operator-set behavior knobs.
type Policy struct {
	// AllowGeneratedName assigns a Rider_NNN placeholder when the duty-on
	// command carries no name. When false, an empty name is rejected.
	AllowGeneratedName bool
}

// NameStore persists the rider's display name across process restarts.
type NameStore interface {
	Load() string
	Save(name string) error
}

type Controller struct {
	store    store.Store
	prober   *diagnostics.Prober
	watcher  *watcher.Watcher
	writer   *telemetry.Writer
	names    NameStore
	policy   Policy
	validate *validator.Validate
	log      zerolog.Logger

	mu   sync.Mutex
	cur  Context
	diag diagnostics.State
}

func NewController(s store.Store, prober *diagnostics.Prober, w *watcher.Watcher, writer *telemetry.Writer, names NameStore, policy Policy, log zerolog.Logger) *Controller {
	return &Controller{
		store:    s,
		prober:   prober,
		watcher:  w,
		writer:   writer,
		names:    names,
		policy:   policy,
		validate: validator.New(),
		log:      log,
		cur:      Context{State: StateOffline},
		diag: diagnostics.State{
			Network:  diagnostics.StatusPending,
			Store:    diagnostics.StatusPending,
			Location: diagnostics.StatusPending,
		},
	}
}

// Current returns the present session context.
func (c *Controller) Current() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Diagnostics returns the last probe snapshot without re-probing.
func (c *Controller) Diagnostics() diagnostics.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diag
}

// Probe re-runs diagnostics and remembers the snapshot.
func (c *Controller) Probe(ctx context.Context) diagnostics.State {
	state := c.prober.Probe(ctx)
	c.mu.Lock()
	c.diag = state
	c.mu.Unlock()
	return state
}

// SavedName returns the persisted display name, if any.
func (c *Controller) SavedName() string {
	if c.names == nil {
		return ""
	}
	return c.names.Load()
}

// GoOnline drives Offline -> Checking -> Online. A second call while
// already Online is a no-op and never creates a second active session.
func (c *Controller) GoOnline(ctx context.Context, displayName string) (Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur.State == StateOnline {
		return c.cur, nil
	}

	name := strings.TrimSpace(displayName)
	if err := c.validate.Struct(GoOnlineCommand{Name: name}); err != nil {
		if !c.policy.AllowGeneratedName || name != "" {
			return c.cur, fmt.Errorf("%w: rider name required", ErrValidation)
		}
		name = fmt.Sprintf("Rider_%03d", rand.Intn(1000))
	}
	riderID := RiderIDFromName(name)

	c.cur = Context{State: StateChecking, RiderID: riderID, RiderName: name}

	if c.diag.Store != diagnostics.StatusOK || c.diag.Location != diagnostics.StatusOK {
		c.diag = c.prober.Probe(ctx)
	}
	if !c.diag.Ready() {
		c.cur.State = StateError
		c.cur.LastError = "system checks failed, see diagnostics"
		if c.diag.LocationDenied {
			c.cur.LastError = "location permission denied"
		}
		return c.cur, fmt.Errorf("%w: store=%s location=%s", ErrChecksFailed, c.diag.Store, c.diag.Location)
	}

	if c.names != nil {
		if err := c.names.Save(name); err != nil {
			c.log.Warn().Err(err).Msg("could not persist rider name")
		}
	}

	// rider profile write is best effort; duty can start without it
	err := c.store.Upsert(ctx, store.Riders, riderID, map[string]any{
		"name":       name,
		"lastActive": store.ServerTimestamp,
		"type":       "rider",
	})
	if err != nil {
		c.log.Warn().Err(err).Str("rider", riderID).Msg("could not save rider profile")
	}

	// the session record is what analytics keys off, so this one is fatal
	docID, err := c.store.Insert(ctx, store.Sessions, map[string]any{
		"riderId":   riderID,
		"riderName": name,
		"startTime": store.ServerTimestamp,
		"status":    store.StatusActive,
	})
	if err != nil {
		c.cur = Context{State: StateOffline, RiderID: riderID, RiderName: name, LastError: err.Error()}
		return c.cur, fmt.Errorf("could not create tracking session: %w", err)
	}

	tag := fmt.Sprintf("sess_%d", time.Now().UnixMilli())
	sink := func(fix device.Fix) {
		c.writer.Write(telemetry.Point{
			SessionTag:   tag,
			SessionDocID: docID,
			RiderID:      riderID,
			RiderName:    name,
			Lat:          &fix.Lat,
			Lng:          &fix.Lng,
			SpeedMps:     fix.SpeedMps,
			AccuracyM:    fix.AccuracyM,
			Timestamp:    fix.At,
		})
	}

	if err := c.watcher.Arm(ctx, sink, func(err error) { c.onWatcherFatal(tag, err) }); err != nil {
		c.closeSession(ctx, docID)
		c.cur = Context{State: StateError, RiderID: riderID, RiderName: name, LastError: err.Error()}
		return c.cur, fmt.Errorf("could not start tracking: %w", err)
	}

	c.cur = Context{
		State:        StateOnline,
		RiderID:      riderID,
		RiderName:    name,
		SessionTag:   tag,
		SessionDocID: docID,
		StartedAt:    time.Now(),
	}
	c.log.Info().Str("rider", riderID).Str("session", docID).Msg("on duty, tracking started")
	return c.cur, nil
}

// GoOffline is the explicit stop, reachable from any state. The watcher is
// disarmed first, always; closing the session record is best effort and an
// orphaned active session is tolerated downstream.
func (c *Controller) GoOffline(ctx context.Context) (Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.watcher.Disarm()

	if c.cur.SessionDocID != "" {
		c.closeSession(ctx, c.cur.SessionDocID)
	}

	c.cur = Context{State: StateOffline, RiderID: c.cur.RiderID, RiderName: c.cur.RiderName}
	c.log.Info().Str("rider", c.cur.RiderID).Msg("off duty")
	return c.cur, nil
}

func (c *Controller) onWatcherFatal(tag string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// stale notifications from a previous session are ignored
	if c.cur.State != StateOnline || c.cur.SessionTag != tag {
		return
	}

	c.log.Error().Err(err).Str("session", c.cur.SessionDocID).Msg("tracking stopped by watch failure")
	c.closeSession(context.Background(), c.cur.SessionDocID)
	c.cur = Context{
		State:     StateError,
		RiderID:   c.cur.RiderID,
		RiderName: c.cur.RiderName,
		LastError: err.Error(),
	}
}

func (c *Controller) closeSession(ctx context.Context, docID string) {
	err := c.store.Update(ctx, store.Sessions, docID, map[string]any{
		"status":  store.StatusCompleted,
		"endTime": store.ServerTimestamp,
	})
	if err != nil {
		// the session stays active in the store; analytics treats such
		// orphans as ongoing
		c.log.Warn().Err(err).Str("session", docID).Msg("could not close session")
	}
}
