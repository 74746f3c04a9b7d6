// Package store defines the persistent document store contract the tracking
// system is written against. Implementations live in pgstore (Postgres backed)
// and memstore (in process, used by riderd tests).
package store

import (
	"context"
	"errors"
)

// Collections used by the tracking system.
const (
	Riders    = "riders"
	Sessions  = "sessions"
	Telemetry = "telemetry"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

var (
	ErrUnavailable = errors.New("store unavailable")
	ErrNotFound    = errors.New("record not found")
)

// Record is one stored document. Fields round-trip through JSON, so numeric
// values come back as float64 and timestamps may come back as RFC3339 strings.
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Filters is an equality match over top-level fields.
type Filters map[string]any

type serverTimestamp struct{}

// ServerTimestamp is a sentinel field value resolved to wall-clock time by the
// store at write time.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// UnsubscribeFunc cancels a change-feed subscription. Safe to call twice.
type UnsubscribeFunc func()

// OnChange receives the full current matching set on every change.
type OnChange func(records []Record)

// Store is the persistence contract. Upsert merges fields into the record at
// key, creating it if absent. Insert appends a new record and returns its
// generated id. Update merges fields into an existing record. Query is a
// one-shot read; limit <= 0 means no limit. Subscribe delivers the whole
// matching snapshot on every change until unsubscribed.
type Store interface {
	Upsert(ctx context.Context, collection, key string, fields map[string]any) error
	Insert(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Query(ctx context.Context, collection string, filters Filters, limit int) ([]Record, error)
	Subscribe(collection string, filters Filters, onChange OnChange) (UnsubscribeFunc, error)
}
