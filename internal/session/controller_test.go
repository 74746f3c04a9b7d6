package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/device"
	"github.com/Vinith467/realtime-tracking/internal/diagnostics"
	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/store/memstore"
	"github.com/Vinith467/realtime-tracking/internal/telemetry"
	"github.com/Vinith467/realtime-tracking/internal/watcher"
)

type fakeLocator struct {
	mu       sync.Mutex
	watchErr error
	onFix    func(device.Fix)
}

func (f *fakeLocator) Current(ctx context.Context) (device.Fix, error) {
	return device.Fix{Lat: 12.97, Lng: 77.59, At: time.Now()}, nil
}

func (f *fakeLocator) Watch(onFix func(device.Fix), onError func(error)) (device.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.onFix = onFix
	return device.SubscriptionFunc(func() {}), nil
}

func (f *fakeLocator) emit(fix device.Fix) {
	f.mu.Lock()
	onFix := f.onFix
	f.mu.Unlock()
	if onFix != nil {
		onFix(fix)
	}
}

type fakeScreen struct{}

func (fakeScreen) Acquire() error { return nil }
func (fakeScreen) Release()       {}

type online struct{}

func (online) Online() bool { return true }

type deniedLocator struct{ fakeLocator }

func (*deniedLocator) Current(ctx context.Context) (device.Fix, error) {
	return device.Fix{}, device.ErrPermissionDenied
}

// sessionFailStore lets the sessions collection fail while everything else
// keeps working.
type sessionFailStore struct {
	*memstore.Store
}

func (s sessionFailStore) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == store.Sessions {
		return "", store.ErrUnavailable
	}
	return s.Store.Insert(ctx, collection, fields)
}

func newController(t *testing.T, s store.Store, loc device.Locator, policy Policy) *Controller {
	t.Helper()
	return newControllerWithNames(t, s, loc, policy, nil)
}

func newControllerWithNames(t *testing.T, s store.Store, loc device.Locator, policy Policy, names NameStore) *Controller {
	t.Helper()
	prober := diagnostics.NewProber(s, loc, online{}, time.Second, zerolog.Nop())
	w := watcher.New(loc, fakeScreen{}, nil, time.Hour, time.Second, zerolog.Nop())
	writer := telemetry.NewWriter(s, zerolog.Nop())
	t.Cleanup(writer.Close)
	return NewController(s, prober, w, writer, names, policy, zerolog.Nop())
}

func waitTelemetry(t *testing.T, s store.Store, filters store.Filters, want int) []store.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		records, err := s.Query(context.Background(), store.Telemetry, filters, 0)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(records) >= want {
			return records
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout: have %d telemetry records, want %d", len(records), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGoOnlineEmptyNameRejected(t *testing.T) {
	ms := memstore.New()
	ctl := newController(t, ms, &fakeLocator{}, Policy{AllowGeneratedName: false})

	sess, err := ctl.GoOnline(context.Background(), "   ")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if sess.State != StateOffline {
		t.Fatalf("state must stay offline, got %s", sess.State)
	}

	records, _ := ms.Query(context.Background(), store.Sessions, nil, 0)
	if len(records) != 0 {
		t.Fatalf("no session may be created on rejected command")
	}
}

func TestGoOnlineGeneratedName(t *testing.T) {
	ms := memstore.New()
	ctl := newController(t, ms, &fakeLocator{}, Policy{AllowGeneratedName: true})

	sess, err := ctl.GoOnline(context.Background(), "")
	if err != nil {
		t.Fatalf("go online: %v", err)
	}
	if sess.State != StateOnline {
		t.Fatalf("expected online, got %s", sess.State)
	}
	if !strings.HasPrefix(sess.RiderName, "Rider_") {
		t.Fatalf("expected placeholder name, got %q", sess.RiderName)
	}

	_, _ = ctl.GoOffline(context.Background())
}

func TestGoOnlineCreatesSessionAndStreamsTelemetry(t *testing.T) {
	ms := memstore.New()
	loc := &fakeLocator{}
	ctl := newController(t, ms, loc, Policy{})

	sess, err := ctl.GoOnline(context.Background(), "Ravi K")
	if err != nil {
		t.Fatalf("go online: %v", err)
	}
	if sess.State != StateOnline || sess.RiderID != "ravi_k" || sess.SessionDocID == "" {
		t.Fatalf("unexpected context: %+v", sess)
	}
	if !strings.HasPrefix(sess.SessionTag, "sess_") {
		t.Fatalf("unexpected session tag %q", sess.SessionTag)
	}

	riders, _ := ms.Query(context.Background(), store.Riders, nil, 0)
	if len(riders) != 1 || riders[0].ID != "ravi_k" {
		t.Fatalf("expected rider profile upsert: %+v", riders)
	}

	sessions, _ := ms.Query(context.Background(), store.Sessions, store.Filters{"status": store.StatusActive}, 0)
	if len(sessions) != 1 {
		t.Fatalf("expected one active session, got %d", len(sessions))
	}

	loc.emit(device.Fix{Lat: 12.98, Lng: 77.60, At: time.Now()})
	records := waitTelemetry(t, ms, store.Filters{"sessionDocId": sess.SessionDocID}, 1)
	p := telemetry.PointFromRecord(records[0])
	if p.RiderID != "ravi_k" || p.SessionTag != sess.SessionTag {
		t.Fatalf("telemetry missing session tags: %+v", p)
	}

	_, _ = ctl.GoOffline(context.Background())
}

func TestGoOnlineTwiceSingleSession(t *testing.T) {
	ms := memstore.New()
	ctl := newController(t, ms, &fakeLocator{}, Policy{})

	first, err := ctl.GoOnline(context.Background(), "Ravi K")
	if err != nil {
		t.Fatalf("go online: %v", err)
	}
	second, err := ctl.GoOnline(context.Background(), "Ravi K")
	if err != nil {
		t.Fatalf("second go online: %v", err)
	}
	if second.SessionDocID != first.SessionDocID {
		t.Fatalf("re-entrant go online must be a no-op")
	}

	sessions, _ := ms.Query(context.Background(), store.Sessions, store.Filters{"status": store.StatusActive}, 0)
	if len(sessions) != 1 {
		t.Fatalf("expected exactly one active session, got %d", len(sessions))
	}

	_, _ = ctl.GoOffline(context.Background())
}

func TestGoOfflineClosesSessionAndSuppressesWrites(t *testing.T) {
	ms := memstore.New()
	loc := &fakeLocator{}
	ctl := newController(t, ms, loc, Policy{})

	sess, err := ctl.GoOnline(context.Background(), "Ravi K")
	if err != nil {
		t.Fatalf("go online: %v", err)
	}

	loc.emit(device.Fix{Lat: 12.98, Lng: 77.60, At: time.Now()})
	waitTelemetry(t, ms, store.Filters{"sessionDocId": sess.SessionDocID}, 1)

	// hold the provider callback as an in-flight delivery, then go offline
	loc.mu.Lock()
	inFlight := loc.onFix
	loc.mu.Unlock()

	off, err := ctl.GoOffline(context.Background())
	if err != nil {
		t.Fatalf("go offline: %v", err)
	}
	if off.State != StateOffline {
		t.Fatalf("expected offline, got %s", off.State)
	}

	closed, _ := ms.Query(context.Background(), store.Sessions, store.Filters{"status": store.StatusCompleted}, 0)
	if len(closed) != 1 {
		t.Fatalf("expected completed session, got %d", len(closed))
	}
	if _, ok := closed[0].Fields["endTime"].(time.Time); !ok {
		t.Fatalf("expected end time on completed session")
	}

	inFlight(device.Fix{Lat: 12.99, Lng: 77.61, At: time.Now()})
	time.Sleep(100 * time.Millisecond)
	records, _ := ms.Query(context.Background(), store.Telemetry, store.Filters{"sessionDocId": sess.SessionDocID}, 0)
	if len(records) != 1 {
		t.Fatalf("telemetry written after disarm: %d records", len(records))
	}
}

func TestGoOnlineSessionCreateFatal(t *testing.T) {
	ms := memstore.New()
	ctl := newController(t, sessionFailStore{ms}, &fakeLocator{}, Policy{})

	sess, err := ctl.GoOnline(context.Background(), "Ravi K")
	if err == nil {
		t.Fatalf("expected session create failure to abort")
	}
	if sess.State != StateOffline {
		t.Fatalf("expected fallback to offline, got %s", sess.State)
	}
}

func TestGoOnlineLocationDeniedFatal(t *testing.T) {
	ms := memstore.New()
	loc := &deniedLocator{}
	ctl := newController(t, ms, loc, Policy{})

	sess, err := ctl.GoOnline(context.Background(), "Ravi K")
	if !errors.Is(err, ErrChecksFailed) {
		t.Fatalf("expected checks failure, got %v", err)
	}
	if sess.State != StateError {
		t.Fatalf("expected error state, got %s", sess.State)
	}
	if sess.LastError != "location permission denied" {
		t.Fatalf("expected denied message, got %q", sess.LastError)
	}

	sessions, _ := ms.Query(context.Background(), store.Sessions, nil, 0)
	if len(sessions) != 0 {
		t.Fatalf("watcher path must never run on failed checks")
	}
}

func TestGoOnlineArmFailureClosesSession(t *testing.T) {
	ms := memstore.New()
	loc := &fakeLocator{watchErr: device.ErrPermissionDenied}
	ctl := newController(t, ms, loc, Policy{})

	// probes pass (Current works), but the continuous watch is denied
	sess, err := ctl.GoOnline(context.Background(), "Ravi K")
	if err == nil {
		t.Fatalf("expected arm failure")
	}
	if sess.State != StateError {
		t.Fatalf("expected error state, got %s", sess.State)
	}

	active, _ := ms.Query(context.Background(), store.Sessions, store.Filters{"status": store.StatusActive}, 0)
	if len(active) != 0 {
		t.Fatalf("aborted transition left an active session")
	}
}

func TestWatcherFatalWhileOnline(t *testing.T) {
	ms := memstore.New()
	loc := &fakeLocator{}
	prober := diagnostics.NewProber(ms, loc, online{}, time.Second, zerolog.Nop())

	var onError func(error)
	trapLoc := watchTrap{fakeLocator: loc, capture: &onError}
	w := watcher.New(trapLoc, fakeScreen{}, nil, time.Hour, time.Second, zerolog.Nop())
	writer := telemetry.NewWriter(ms, zerolog.Nop())
	defer writer.Close()
	ctl := NewController(ms, prober, w, writer, nil, Policy{}, zerolog.Nop())

	if _, err := ctl.GoOnline(context.Background(), "Ravi K"); err != nil {
		t.Fatalf("go online: %v", err)
	}

	onError(device.ErrPermissionDenied)

	deadline := time.Now().Add(time.Second)
	for ctl.Current().State != StateError {
		if time.Now().After(deadline) {
			t.Fatalf("expected error state, got %s", ctl.Current().State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	active, _ := ms.Query(context.Background(), store.Sessions, store.Filters{"status": store.StatusActive}, 0)
	if len(active) != 0 {
		t.Fatalf("fatal watch error left an active session")
	}
}

// syncFatalLocator reports permission denial from inside Watch, before the
// subscription handle is even returned.
type syncFatalLocator struct{ fakeLocator }

func (s *syncFatalLocator) Watch(onFix func(device.Fix), onError func(error)) (device.Subscription, error) {
	onError(device.ErrPermissionDenied)
	return device.SubscriptionFunc(func() {}), nil
}

func TestWatcherFatalDuringArmDoesNotDeadlock(t *testing.T) {
	ms := memstore.New()
	ctl := newController(t, ms, &syncFatalLocator{}, Policy{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ctl.GoOnline(context.Background(), "Ravi K")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("go online never returned")
	}

	deadline := time.Now().Add(time.Second)
	for {
		active, _ := ms.Query(context.Background(), store.Sessions, store.Filters{"status": store.StatusActive}, 0)
		if len(active) == 0 && ctl.Current().State == StateError {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("fatal during arm left state %s with %d active sessions", ctl.Current().State, len(active))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// watchTrap forwards Watch but leaks the error callback to the test.
type watchTrap struct {
	*fakeLocator
	capture *func(error)
}

func (w watchTrap) Watch(onFix func(device.Fix), onError func(error)) (device.Subscription, error) {
	*w.capture = onError
	return w.fakeLocator.Watch(onFix, onError)
}

func TestRiderIDFromName(t *testing.T) {
	cases := map[string]string{
		"Ravi K":      "ravi_k",
		"  Asha  M  ": "asha_m",
		"SINGLE":      "single",
	}
	for in, want := range cases {
		if got := RiderIDFromName(in); got != want {
			t.Fatalf("RiderIDFromName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileNameStore(t *testing.T) {
	path := t.TempDir() + "/rider_name.txt"
	ns := FileNameStore{Path: path}
	if ns.Load() != "" {
		t.Fatalf("expected empty load before save")
	}
	if err := ns.Save("Ravi K"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ns.Load() != "Ravi K" {
		t.Fatalf("unexpected load: %q", ns.Load())
	}
}
