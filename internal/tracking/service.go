package tracking

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/analytics"
	"github.com/Vinith467/realtime-tracking/internal/shared/geo"
	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/telemetry"
)

const (
	defaultHistoryLimit = 20
	ongoingLabel        = "Ongoing"
)

type Service struct {
	store store.Store
	log   zerolog.Logger
}

func NewService(s store.Store, log zerolog.Logger) *Service {
	return &Service{store: s, log: log}
}

// Riders lists every known rider profile, sorted by name.
func (s *Service) Riders(ctx context.Context) ([]Rider, error) {
	records, err := s.store.Query(ctx, store.Riders, store.Filters{"type": "rider"}, 0)
	if err != nil {
		return nil, err
	}

	riders := make([]Rider, 0, len(records))
	for _, rec := range records {
		riders = append(riders, Rider{
			ID:         rec.ID,
			Name:       stringField(rec.Fields, "name"),
			LastActive: timeField(rec.Fields, "lastActive"),
		})
	}
	sort.Slice(riders, func(i, j int) bool { return riders[i].Name < riders[j].Name })
	return riders, nil
}

// Sessions returns a rider's duty history, newest first. An active session
// has no end time yet and reports "Ongoing"; a session whose record never
// got closed looks the same, which is the honest answer.
func (s *Service) Sessions(ctx context.Context, riderID string, limit int) ([]SessionView, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	records, err := s.store.Query(ctx, store.Sessions, store.Filters{"riderId": riderID}, 0)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(records))
	for _, rec := range records {
		view := SessionView{
			ID:        rec.ID,
			RiderID:   riderID,
			RiderName: stringField(rec.Fields, "riderName"),
			Status:    stringField(rec.Fields, "status"),
			StartTime: timeField(rec.Fields, "startTime"),
			Duration:  ongoingLabel,
		}
		if end := timeField(rec.Fields, "endTime"); !end.IsZero() && view.Status == store.StatusCompleted {
			view.EndTime = &end
			view.Duration = geo.FormatDuration(end.Sub(view.StartTime))
		}
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool { return views[i].StartTime.After(views[j].StartTime) })
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// Summary folds a rider's telemetry for one calendar day into trip stats.
func (s *Service) Summary(ctx context.Context, riderID string, day time.Time) (DaySummary, error) {
	points, err := s.points(ctx, riderID)
	if err != nil {
		return DaySummary{}, err
	}
	return DaySummary{
		RiderID:     riderID,
		Date:        day.Format("2006-01-02"),
		TripSummary: analytics.Summarize(points, analytics.DayWindow(day)),
	}, nil
}

// Path returns just the ordered coordinates for one calendar day.
func (s *Service) Path(ctx context.Context, riderID string, day time.Time) (PathResponse, error) {
	summary, err := s.Summary(ctx, riderID, day)
	if err != nil {
		return PathResponse{}, err
	}
	points := summary.TripSummary.Path
	if points == nil {
		points = []geo.LatLng{}
	}
	return PathResponse{RiderID: riderID, Date: summary.Date, Points: points}, nil
}

func (s *Service) points(ctx context.Context, riderID string) ([]telemetry.Point, error) {
	records, err := s.store.Query(ctx, store.Telemetry, store.Filters{"riderId": riderID}, 0)
	if err != nil {
		return nil, err
	}
	points := make([]telemetry.Point, 0, len(records))
	for _, rec := range records {
		points = append(points, telemetry.PointFromRecord(rec))
	}
	return points, nil
}

func stringField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

func timeField(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t
	default:
		return time.Time{}
	}
}
