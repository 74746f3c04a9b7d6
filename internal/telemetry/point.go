// Package telemetry owns the telemetry point model and the fire-and-forget
// writer that appends points to the store.
package telemetry

import (
	"time"

	"github.com/Vinith467/realtime-tracking/internal/store"
)

// Point is one timestamped location sample. Coordinates, speed, and accuracy
// are optional because the provider may omit them; a point without both
// coordinates and a resolved timestamp never reaches analytics.
type Point struct {
	ID           string
	SessionTag   string
	SessionDocID string
	RiderID      string
	RiderName    string
	Lat          *float64
	Lng          *float64
	SpeedMps     *float64
	AccuracyM    *float64
	Timestamp    time.Time
}

// Valid reports whether the point carries both coordinates and a resolved
// timestamp.
func (p Point) Valid() bool {
	return p.Lat != nil && p.Lng != nil && !p.Timestamp.IsZero()
}

// PointFromRecord decodes a stored telemetry document, tolerating missing
// fields. Timestamps may arrive as time.Time (memstore) or RFC3339 strings
// (jsonb round-trip).
func PointFromRecord(rec store.Record) Point {
	return Point{
		ID:           rec.ID,
		SessionTag:   stringField(rec.Fields, "sessionId"),
		SessionDocID: stringField(rec.Fields, "sessionDocId"),
		RiderID:      stringField(rec.Fields, "riderId"),
		RiderName:    stringField(rec.Fields, "riderName"),
		Lat:          floatField(rec.Fields, "lat"),
		Lng:          floatField(rec.Fields, "lng"),
		SpeedMps:     floatField(rec.Fields, "speed"),
		AccuracyM:    floatField(rec.Fields, "accuracy"),
		Timestamp:    timeField(rec.Fields, "timestamp"),
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func floatField(fields map[string]any, key string) *float64 {
	switch v := fields[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	}
	return nil
}

func timeField(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
