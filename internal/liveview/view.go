// Package liveview keeps a continuously refreshed trip summary per rider.
// Every change-feed event re-runs the aggregation over the full snapshot,
// so a frame is always a complete picture and duplicates are harmless.
package liveview

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/analytics"
	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/telemetry"
)

// Key selects whose telemetry to watch and which slice of time to fold.
type Key struct {
	RiderID string
	Window  analytics.Window
}

// Sink receives a fresh summary for a key after each change-feed event.
type Sink func(key Key, summary analytics.TripSummary)

// View maintains at most one live subscription for its current key.
type View struct {
	store store.Store
	sink  Sink
	log   zerolog.Logger

	mu    sync.Mutex
	key   Key
	unsub store.UnsubscribeFunc
}

func NewView(s store.Store, sink Sink, log zerolog.Logger) *View {
	return &View{store: s, sink: sink, log: log}
}

// SetKey swaps the subscription to a new key. The previous subscription is
// torn down first; a frame for the old key may still be in flight and is
// dropped on arrival.
func (v *View) SetKey(key Key) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unsub != nil {
		v.unsub()
		v.unsub = nil
	}
	v.key = key
	if key.RiderID == "" {
		return nil
	}

	unsub, err := v.store.Subscribe(store.Telemetry, store.Filters{"riderId": key.RiderID}, func(records []store.Record) {
		v.onSnapshot(key, records)
	})
	if err != nil {
		return err
	}
	v.unsub = unsub
	return nil
}

// Close tears the subscription down. The view can be re-keyed afterwards.
func (v *View) Close() {
	v.SetKey(Key{})
}

func (v *View) onSnapshot(key Key, records []store.Record) {
	v.mu.Lock()
	stale := v.key != key
	v.mu.Unlock()
	if stale {
		return
	}

	points := make([]telemetry.Point, 0, len(records))
	for _, rec := range records {
		points = append(points, telemetry.PointFromRecord(rec))
	}
	v.sink(key, analytics.Summarize(points, key.Window))
}
