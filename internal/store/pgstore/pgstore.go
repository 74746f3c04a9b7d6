// Package pgstore implements store.Store on Postgres. Documents live in a
// single jsonb table keyed by (collection, id); merge writes use jsonb
// concatenation and server timestamps resolve to now() inside the query.
// When a redis client is supplied, mutations are announced on a pub/sub
// channel so change feeds work across processes (riderd writes, api reads).
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/db"
	"github.com/Vinith467/realtime-tracking/internal/store"
)

const channelPrefix = "store:"

type subscriber struct {
	id         int
	collection string
	filters    store.Filters
	onChange   store.OnChange

	wake chan struct{}
	stop chan struct{}
}

type Store struct {
	db    db.Querier
	redis *redis.Client
	log   zerolog.Logger

	mu      sync.Mutex
	subs    []*subscriber
	nextSub int
	pubsub  *redis.PubSub
}

func New(q db.Querier, rdb *redis.Client, log zerolog.Logger) *Store {
	s := &Store{db: q, redis: rdb, log: log}
	if rdb != nil {
		s.pubsub = rdb.PSubscribe(context.Background(), channelPrefix+"*")
		go s.listenRedis()
	}
	return s
}

// Migrate creates the documents table if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection text NOT NULL,
			id         text NOT NULL,
			fields     jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)
	`)
	return err
}

func (s *Store) Upsert(ctx context.Context, collection, key string, fields map[string]any) error {
	expr, args, err := fieldsExpr(fields, 3)
	if err != nil {
		return err
	}
	args = append([]any{collection, key}, args...)

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, `+expr+`)
		ON CONFLICT (collection, id) DO UPDATE SET fields = documents.fields || EXCLUDED.fields
	`, args...)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}

	s.notify(collection)
	return nil
}

func (s *Store) Insert(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()

	expr, args, err := fieldsExpr(fields, 3)
	if err != nil {
		return "", err
	}
	args = append([]any{collection, id}, args...)

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, `+expr+`)
	`, args...)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}

	s.notify(collection)
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	expr, args, err := fieldsExpr(fields, 3)
	if err != nil {
		return err
	}
	args = append([]any{collection, id}, args...)

	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET fields = fields || `+expr+`
		WHERE collection = $1 AND id = $2
	`, args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	s.notify(collection)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filters store.Filters, limit int) ([]store.Record, error) {
	match, err := json.Marshal(normalizeFilters(filters))
	if err != nil {
		return nil, err
	}

	sql := `
		SELECT id, fields FROM documents
		WHERE collection = $1 AND fields @> $2::jsonb
		ORDER BY created_at, id
	`
	args := []any{collection, match}
	if limit > 0 {
		sql += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	records := []store.Record{}
	for rows.Next() {
		var rec store.Record
		var raw []byte
		if err := rows.Scan(&rec.ID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rec.Fields); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
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
		stop:       make(chan struct{}),
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	// change feeds open with the current snapshot
	sub.wake <- struct{}{}
	go s.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			for i, candidate := range s.subs {
				if candidate.id == sub.id {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			close(sub.stop)
		})
	}, nil
}

// Close stops the redis bridge. Outstanding subscriptions stop receiving
// remote changes but remain registered until unsubscribed.
func (s *Store) Close() {
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
}

func (s *Store) notify(collection string) {
	s.fanout(collection)

	if s.redis != nil {
		err := s.redis.Publish(context.Background(), channelPrefix+collection, collection).Err()
		if err != nil {
			s.log.Warn().Err(err).Str("collection", collection).Msg("change publish failed")
		}
	}
}

// fanout wakes the delivery worker of every local subscriber on the
// collection. A local write wakes subscribers again when the redis bridge
// echoes it back; each delivery re-queries, so the duplicate is harmless.
func (s *Store) fanout(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// run is the per-subscriber delivery worker. Snapshots are queried at wake
// time and delivered one after another, so a subscriber never observes an
// older snapshot after a newer one; back-to-back wakes coalesce.
func (s *Store) run(sub *subscriber) {
	for {
		select {
		case <-sub.stop:
			return
		case <-sub.wake:
		}

		records, err := s.Query(context.Background(), sub.collection, sub.filters, 0)
		if err != nil {
			s.log.Warn().Err(err).Str("collection", sub.collection).Msg("change feed query failed")
			continue
		}
		select {
		case <-sub.stop:
			return
		default:
		}
		sub.onChange(records)
	}
}

func (s *Store) listenRedis() {
	for msg := range s.pubsub.Channel() {
		s.fanout(strings.TrimPrefix(msg.Channel, channelPrefix))
	}
}

// fieldsExpr renders a fields map as a jsonb SQL expression starting at
// argument position firstArg. ServerTimestamp sentinels are split out and
// resolved with now() so the database clock is authoritative.
func fieldsExpr(fields map[string]any, firstArg int) (string, []any, error) {
	plain := make(map[string]any, len(fields))
	var sentinels []string
	for key, value := range fields {
		if store.IsServerTimestamp(value) {
			sentinels = append(sentinels, key)
			continue
		}
		plain[key] = value
	}
	sort.Strings(sentinels)

	payload, err := json.Marshal(plain)
	if err != nil {
		return "", nil, err
	}

	expr := fmt.Sprintf("$%d::jsonb", firstArg)
	args := []any{payload}
	for i, key := range sentinels {
		expr += fmt.Sprintf(" || jsonb_build_object($%d::text, now())", firstArg+1+i)
		args = append(args, key)
	}
	return expr, args, nil
}

func normalizeFilters(filters store.Filters) map[string]any {
	if filters == nil {
		return map[string]any{}
	}
	return filters
}
