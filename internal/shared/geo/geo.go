package geo

import (
	"fmt"
	"math"
	"time"
)

const earthRadiusKm = 6371

// LatLng is a bare coordinate pair, ordered lat then lng.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm returns the great-circle distance between two coordinates in km.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// PathDistanceKm sums consecutive pairwise distances along an ordered path.
// Paths of zero or one point have zero length.
func PathDistanceKm(path []LatLng) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += HaversineKm(path[i-1].Lat, path[i-1].Lng, path[i].Lat, path[i].Lng)
	}
	return total
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}

// EmptyDurationLabel is what a window with no samples reads as.
const EmptyDurationLabel = "0m"

// LessThanMinuteLabel covers spans under sixty seconds.
const LessThanMinuteLabel = "< 1m"

// FormatDuration renders a span as whole hours and minutes, e.g. "1h 5m" or
// "0h 20m". Spans under a minute collapse to LessThanMinuteLabel.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return LessThanMinuteLabel
	}
	mins := int64(d / time.Minute)
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}
