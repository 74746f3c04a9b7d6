package tracking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/store/memstore"
)

func passthrough(c *fiber.Ctx) error { return c.Next() }

func TestTrackingHandlers(t *testing.T) {
	ms := memstore.New()
	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	seedRider(t, ms, "ravi_k", "Ravi K", day)
	end := day.Add(20 * time.Minute)
	seedSession(t, ms, "ravi_k", store.StatusCompleted, day, &end)
	seedTelemetry(t, ms, "ravi_k", 12.9716, 77.5946, day)
	seedTelemetry(t, ms, "ravi_k", 12.9720, 77.5950, day.Add(10*time.Minute))

	app := fiber.New()
	RegisterRoutes(app.Group("/api"), NewService(ms, zerolog.Nop()), passthrough)

	req := httptest.NewRequest(http.MethodGet, "/api/riders", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("riders status: %v", err)
	}
	var riders []Rider
	if err := json.NewDecoder(resp.Body).Decode(&riders); err != nil {
		t.Fatalf("decode riders: %v", err)
	}
	if len(riders) != 1 || riders[0].ID != "ravi_k" {
		t.Fatalf("unexpected riders: %+v", riders)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/riders/ravi_k/sessions?limit=5", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("sessions status: %v", err)
	}
	var sessions []SessionView
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Duration != "0h 20m" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/riders/ravi_k/summary?date=2025-03-10", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status: %v", err)
	}
	var summary DaySummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.PointCount != 2 || summary.Date != "2025-03-10" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/riders/ravi_k/path?date=2025-03-10", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("path status: %v", err)
	}
	var path PathResponse
	if err := json.NewDecoder(resp.Body).Decode(&path); err != nil {
		t.Fatalf("decode path: %v", err)
	}
	if len(path.Points) != 2 {
		t.Fatalf("unexpected path: %+v", path)
	}
}

func TestTrackingHandlersBadDate(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/api"), NewService(memstore.New(), zerolog.Nop()), passthrough)

	req := httptest.NewRequest(http.MethodGet, "/api/riders/ravi_k/summary?date=yesterday", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/riders/ravi_k/path?date=10-03-2025", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request")
	}
}

func TestTrackingHandlersAuthApplied(t *testing.T) {
	app := fiber.New()
	deny := func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusUnauthorized) }
	RegisterRoutes(app.Group("/api"), NewService(memstore.New(), zerolog.Nop()), deny)

	req := httptest.NewRequest(http.MethodGet, "/api/riders", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}
}
