// Package analytics turns an unordered, possibly dirty set of telemetry
// points into an ordered path and trip statistics. Summarize is a total,
// deterministic function of its inputs: every run over the same point set
// yields the same summary regardless of input order.
package analytics

import (
	"sort"
	"time"

	"github.com/Vinith467/realtime-tracking/internal/shared/geo"
	"github.com/Vinith467/realtime-tracking/internal/telemetry"
)

const mpsToKmh = 3.6

// Window bounds a trip query in time, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow covers the whole calendar day containing t, in t's location.
func DayWindow(t time.Time) Window {
	year, month, day := t.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return Window{Start: start, End: start.Add(24*time.Hour - time.Nanosecond)}
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// TripSummary is derived, never stored.
type TripSummary struct {
	DistanceKm    float64     `json:"distance_km"`
	AvgSpeedKmh   float64     `json:"avg_speed_kmh"`
	MaxSpeedKmh   float64     `json:"max_speed_kmh"`
	DurationLabel string      `json:"duration"`
	Path          []geo.LatLng `json:"path"`
	PointCount    int         `json:"point_count"`
}

// Summarize filters invalid and out-of-window points, orders the rest by
// timestamp, and computes distance, speed, and duration statistics. Speed is
// provider-supplied (m/s, missing reads as 0), never derived from deltas.
func Summarize(points []telemetry.Point, window Window) TripSummary {
	kept := make([]telemetry.Point, 0, len(points))
	for _, p := range points {
		if p.Valid() && window.Contains(p.Timestamp) {
			kept = append(kept, p)
		}
	}

	// record id breaks timestamp ties so the result does not depend on
	// input order
	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].Timestamp.Equal(kept[j].Timestamp) {
			return kept[i].Timestamp.Before(kept[j].Timestamp)
		}
		return kept[i].ID < kept[j].ID
	})

	summary := TripSummary{
		Path:          make([]geo.LatLng, 0, len(kept)),
		DurationLabel: geo.EmptyDurationLabel,
		PointCount:    len(kept),
	}

	totalSpeed := 0.0
	for _, p := range kept {
		summary.Path = append(summary.Path, geo.LatLng{Lat: *p.Lat, Lng: *p.Lng})

		speedKmh := 0.0
		if p.SpeedMps != nil {
			speedKmh = *p.SpeedMps * mpsToKmh
		}
		totalSpeed += speedKmh
		if speedKmh > summary.MaxSpeedKmh {
			summary.MaxSpeedKmh = speedKmh
		}
	}

	summary.DistanceKm = geo.PathDistanceKm(summary.Path)
	if len(kept) > 0 {
		summary.AvgSpeedKmh = totalSpeed / float64(len(kept))
		summary.DurationLabel = geo.FormatDuration(kept[len(kept)-1].Timestamp.Sub(kept[0].Timestamp))
	}
	return summary
}
