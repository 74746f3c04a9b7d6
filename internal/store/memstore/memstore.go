// Package memstore is an in-memory store.Store with the same observable
// semantics as pgstore: merge writes, equality filters, whole-snapshot
// change feeds. riderd unit tests run against it.
package memstore

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Vinith467/realtime-tracking/internal/store"
)

type document struct {
	id     string
	fields map[string]any
}

type subscriber struct {
	id         int
	collection string
	filters    store.Filters
	onChange   store.OnChange

	mu      sync.Mutex
	pending []store.Record
	queued  bool
	stopped bool
	wake    chan struct{}
}

// push replaces the pending snapshot and wakes the delivery worker. Called
// with the store lock held so pending always reflects the latest write.
func (sub *subscriber) push(records []store.Record) {
	sub.mu.Lock()
	sub.pending = records
	sub.queued = true
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// run delivers one snapshot at a time, newest wins. Serialized delivery keeps
// a subscriber from observing an older snapshot after a newer one.
func (sub *subscriber) run() {
	for range sub.wake {
		for {
			sub.mu.Lock()
			if sub.stopped {
				sub.mu.Unlock()
				return
			}
			if !sub.queued {
				sub.mu.Unlock()
				break
			}
			records := sub.pending
			sub.pending, sub.queued = nil, false
			sub.mu.Unlock()
			sub.onChange(records)
		}
	}
}

func (sub *subscriber) stop() {
	sub.mu.Lock()
	sub.stopped = true
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

type Store struct {
	mu      sync.Mutex
	docs    map[string][]*document // collection -> insertion order
	subs    []*subscriber
	nextSub int
}

func New() *Store {
	return &Store{docs: map[string][]*document{}}
}

func (s *Store) Upsert(ctx context.Context, collection, key string, fields map[string]any) error {
	s.mu.Lock()
	if doc := s.find(collection, key); doc != nil {
		mergeFields(doc.fields, fields)
	} else {
		s.docs[collection] = append(s.docs[collection], &document{id: key, fields: resolveFields(fields)})
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.docs[collection] = append(s.docs[collection], &document{id: id, fields: resolveFields(fields)})
	s.mu.Unlock()

	s.notify(collection)
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	doc := s.find(collection, id)
	if doc == nil {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	mergeFields(doc.fields, fields)
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filters store.Filters, limit int) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(collection, filters, limit), nil
}

func (s *Store) Subscribe(collection string, filters store.Filters, onChange store.OnChange) (store.UnsubscribeFunc, error) {
	s.mu.Lock()
	s.nextSub++
	sub := &subscriber{
		id:         s.nextSub,
		collection: collection,
		filters:    filters,
		onChange:   onChange,
		wake:       make(chan struct{}, 1),
	}
	s.subs = append(s.subs, sub)
	// initial snapshot, like a change feed's first event
	sub.push(s.snapshot(collection, filters, 0))
	s.mu.Unlock()

	go sub.run()

	return func() {
		s.mu.Lock()
		for i, candidate := range s.subs {
			if candidate.id == sub.id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		sub.stop()
	}, nil
}

func (s *Store) find(collection, id string) *document {
	for _, doc := range s.docs[collection] {
		if doc.id == id {
			return doc
		}
	}
	return nil
}

func (s *Store) snapshot(collection string, filters store.Filters, limit int) []store.Record {
	records := []store.Record{}
	for _, doc := range s.docs[collection] {
		if !matches(doc.fields, filters) {
			continue
		}
		records = append(records, store.Record{ID: doc.id, Fields: copyFields(doc.fields)})
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.collection == collection {
			sub.push(s.snapshot(collection, sub.filters, 0))
		}
	}
}

func matches(fields map[string]any, filters store.Filters) bool {
	for key, want := range filters {
		if !reflect.DeepEqual(fields[key], want) {
			return false
		}
	}
	return true
}

func mergeFields(dst, src map[string]any) {
	for key, value := range resolveFields(src) {
		dst[key] = value
	}
}

func resolveFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if store.IsServerTimestamp(value) {
			out[key] = time.Now()
			continue
		}
		out[key] = value
	}
	return out
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	return out
}
