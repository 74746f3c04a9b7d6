package liveview

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/analytics"
	"github.com/Vinith467/realtime-tracking/internal/store"
)

// Frame is the wire shape pushed to summary watchers.
type Frame struct {
	RiderID string `json:"rider_id"`
	analytics.TripSummary
}

// Broadcaster receives encoded frames for fanout, one call per event.
type Broadcaster func(riderID string, payload []byte)

// Manager runs one today-window view per rider with interest refcounting,
// so a rider's telemetry is folded once no matter how many clients watch.
type Manager struct {
	store     store.Store
	broadcast Broadcaster
	log       zerolog.Logger
	nowFn     func() time.Time

	mu    sync.Mutex
	views map[string]*managedView
}

type managedView struct {
	refs int
	view *View
}

func NewManager(s store.Store, broadcast Broadcaster, log zerolog.Logger) *Manager {
	return &Manager{
		store:     s,
		broadcast: broadcast,
		log:       log,
		nowFn:     time.Now,
		views:     map[string]*managedView{},
	}
}

// Ensure registers interest in a rider, starting a view on first interest.
func (m *Manager) Ensure(riderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mv, ok := m.views[riderID]; ok {
		mv.refs++
		return nil
	}

	v := NewView(m.store, m.emit, m.log)
	key := Key{RiderID: riderID, Window: analytics.DayWindow(m.nowFn())}
	if err := v.SetKey(key); err != nil {
		return err
	}
	m.views[riderID] = &managedView{refs: 1, view: v}
	return nil
}

// Release drops one unit of interest; the view stops at zero.
func (m *Manager) Release(riderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mv, ok := m.views[riderID]
	if !ok {
		return
	}
	mv.refs--
	if mv.refs > 0 {
		return
	}
	mv.view.Close()
	delete(m.views, riderID)
}

// Close stops every view regardless of remaining interest.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for riderID, mv := range m.views {
		mv.view.Close()
		delete(m.views, riderID)
	}
}

func (m *Manager) emit(key Key, summary analytics.TripSummary) {
	// views outlive a calendar day in principle; re-key when the window
	// no longer covers now so the fold stays on today's trips
	now := m.nowFn()
	if !key.Window.Contains(now) {
		m.rekey(key.RiderID)
		return
	}

	payload, err := json.Marshal(Frame{RiderID: key.RiderID, TripSummary: summary})
	if err != nil {
		m.log.Error().Err(err).Msg("could not encode summary frame")
		return
	}
	m.broadcast(key.RiderID, payload)
}

func (m *Manager) rekey(riderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mv, ok := m.views[riderID]
	if !ok {
		return
	}
	key := Key{RiderID: riderID, Window: analytics.DayWindow(m.nowFn())}
	if err := mv.view.SetKey(key); err != nil {
		m.log.Error().Err(err).Str("rider", riderID).Msg("could not re-key live view")
	}
}
