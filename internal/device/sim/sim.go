// Package sim is a deterministic device layer for riderd: a locator that
// plays a fixed route on a timer, a counting screen lock, and an
// always-online connectivity signal. It stands in for real positioning
// hardware in development and tests.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/Vinith467/realtime-tracking/internal/device"
	"github.com/Vinith467/realtime-tracking/internal/shared/geo"
)

// DefaultRoute loops through central Bangalore.
var DefaultRoute = []geo.LatLng{
	{Lat: 12.9716, Lng: 77.5946},
	{Lat: 12.9725, Lng: 77.5950},
	{Lat: 12.9735, Lng: 77.5960},
	{Lat: 12.9750, Lng: 77.5980},
	{Lat: 12.9780, Lng: 77.6000},
	{Lat: 12.9800, Lng: 77.6050},
}

type Locator struct {
	route  []geo.LatLng
	period time.Duration

	mu  sync.Mutex
	idx int
}

func NewLocator(route []geo.LatLng, period time.Duration) *Locator {
	if len(route) == 0 {
		route = DefaultRoute
	}
	return &Locator{route: route, period: period}
}

func (l *Locator) Current(ctx context.Context) (device.Fix, error) {
	select {
	case <-ctx.Done():
		return device.Fix{}, device.ErrTimeout
	default:
	}
	return l.next(), nil
}

func (l *Locator) Watch(onFix func(device.Fix), onError func(error)) (device.Subscription, error) {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(l.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onFix(l.next())
			}
		}
	}()

	var once sync.Once
	return device.SubscriptionFunc(func() {
		once.Do(func() { close(stop) })
	}), nil
}

// next advances along the route and derives speed from the leg just
// travelled.
func (l *Locator) next() device.Fix {
	l.mu.Lock()
	prev := l.route[l.idx]
	l.idx = (l.idx + 1) % len(l.route)
	cur := l.route[l.idx]
	l.mu.Unlock()

	speed := geo.HaversineKm(prev.Lat, prev.Lng, cur.Lat, cur.Lng) * 1000 / l.period.Seconds()
	accuracy := 5.0
	return device.Fix{
		Lat:       cur.Lat,
		Lng:       cur.Lng,
		SpeedMps:  &speed,
		AccuracyM: &accuracy,
		At:        time.Now(),
	}
}

// ScreenLock counts acquisitions so tests can assert balanced release.
type ScreenLock struct {
	mu   sync.Mutex
	held int
}

func (s *ScreenLock) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held++
	return nil
}

func (s *ScreenLock) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held > 0 {
		s.held--
	}
}

// Held reports the current acquisition depth.
func (s *ScreenLock) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Connectivity is always online unless Down is set.
type Connectivity struct {
	Down bool
}

func (c Connectivity) Online() bool { return !c.Down }

// Visibility never fires; the simulator has no background state.
type Visibility struct{}

func (Visibility) Subscribe(onVisible func()) device.Subscription {
	return device.SubscriptionFunc(func() {})
}
