package tracking

import (
	"time"

	"github.com/Vinith467/realtime-tracking/internal/analytics"
	"github.com/Vinith467/realtime-tracking/internal/shared/geo"
)

type Rider struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	LastActive time.Time `json:"last_active,omitempty"`
}

type SessionView struct {
	ID        string     `json:"id"`
	RiderID   string     `json:"rider_id"`
	RiderName string     `json:"rider_name"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Duration  string     `json:"duration"`
}

type DaySummary struct {
	RiderID string `json:"rider_id"`
	Date    string `json:"date"`
	analytics.TripSummary
}

type PathResponse struct {
	RiderID string       `json:"rider_id"`
	Date    string       `json:"date"`
	Points  []geo.LatLng `json:"points"`
}
