package telemetry

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/store"
)

// Writer appends points to the telemetry collection without ever blocking
// the caller. Writes ride a buffered channel drained by one worker; when the
// buffer is full or the store rejects a write, the point is logged and
// dropped. Sample loss is accepted degradation, not an error.
type Writer struct {
	store store.Store
	log   zerolog.Logger

	ch        chan Point
	closeOnce sync.Once
	done      chan struct{}
}

func NewWriter(s store.Store, log zerolog.Logger) *Writer {
	w := &Writer{
		store: s,
		log:   log,
		ch:    make(chan Point, 64),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Write enqueues a point. Never blocks; drops when the buffer is full.
func (w *Writer) Write(p Point) {
	select {
	case w.ch <- p:
	default:
		w.log.Warn().Str("rider", p.RiderID).Msg("telemetry buffer full, packet dropped")
	}
}

// Close drains queued points and stops the worker.
func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.ch) })
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	for p := range w.ch {
		fields := map[string]any{
			"sessionId":    p.SessionTag,
			"sessionDocId": p.SessionDocID,
			"riderId":      p.RiderID,
			"riderName":    p.RiderName,
			// the store clock is authoritative for sample time
			"timestamp": store.ServerTimestamp,
		}
		if p.Lat != nil {
			fields["lat"] = *p.Lat
		}
		if p.Lng != nil {
			fields["lng"] = *p.Lng
		}
		if p.SpeedMps != nil {
			fields["speed"] = *p.SpeedMps
		}
		if p.AccuracyM != nil {
			fields["accuracy"] = *p.AccuracyM
		}

		if _, err := w.store.Insert(context.Background(), store.Telemetry, fields); err != nil {
			w.log.Warn().Err(err).Str("rider", p.RiderID).Msg("telemetry packet dropped")
		}
	}
}
