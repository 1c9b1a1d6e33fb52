// Package redisstore implements a record store on Redis.
//
// Layout, under a configurable key prefix:
//
//	<prefix>thing:<id>   hash, one JSON field per band
//	<prefix>things       sorted set of ids scored by creation time
//	<prefix>updated      pub/sub channel carrying {id, band, value}
//	<prefix>added        pub/sub channel carrying new ids
//
// Subscriptions go through Redis pub/sub, so writes by other runners
// sharing the server are observed too.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "graylogic:"

// maxUpdateRetries bounds optimistic-lock retries in Update.
const maxUpdateRetries = 5

// Logger receives subscription decode failures.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Store is a Redis-backed transport.Transport.
type Store struct {
	client *redis.Client
	prefix string
	logger Logger
}

var _ transport.Transport = (*Store)(nil)

// update is the payload published on the updated channel.
type update struct {
	ID    string         `json:"id"`
	Band  string         `json:"band"`
	Value map[string]any `json:"value"`
}

// New creates a store on client. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, logger: noopLogger{}}
}

// SetLogger sets the logger for subscription errors.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

func (s *Store) recordKey(id string) string { return s.prefix + "thing:" + id }
func (s *Store) indexKey() string          { return s.prefix + "things" }
func (s *Store) updatedChannel() string    { return s.prefix + "updated" }
func (s *Store) addedChannel() string      { return s.prefix + "added" }

// List implements transport.Transport.
func (s *Store) List(ctx context.Context, _ transport.Params, fn transport.ListFunc) error {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	for _, id := range ids {
		fn(id, false)
	}
	fn("", true)
	return nil
}

// Added implements transport.Transport.
func (s *Store) Added(ctx context.Context, _ transport.Params, fn transport.ListFunc) error {
	return s.subscribe(ctx, s.addedChannel(), func(payload string) {
		fn(payload, false)
	})
}

// Get implements transport.Transport.
func (s *Store) Get(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	if band == "" {
		bands, err := s.client.HKeys(ctx, s.recordKey(id)).Result()
		if err != nil {
			return fmt.Errorf("listing bands of %s: %w", id, err)
		}
		if len(bands) == 0 {
			fn(transport.Record{ID: id, Status: transport.Missing})
			return nil
		}
		sort.Strings(bands)
		fn(transport.Record{
			ID:     id,
			Value:  map[string]any{transport.DirectoryBands: bands},
			Status: transport.Available,
		})
		return nil
	}

	raw, err := s.client.HGet(ctx, s.recordKey(id), band).Result()
	if errors.Is(err, redis.Nil) {
		fn(transport.Record{ID: id, Band: band, Status: transport.Missing})
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", id, band, err)
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", id, band, err)
	}
	fn(transport.Record{ID: id, Band: band, Value: value, Status: transport.Available})
	return nil
}

// Update implements transport.Transport. The merge is guarded with WATCH
// so concurrent writers do not lose keys.
func (s *Store) Update(ctx context.Context, id, band string, value map[string]any) error {
	key := s.recordKey(id)

	txf := func(tx *redis.Tx) error {
		current := map[string]any{}
		raw, err := tx.HGet(ctx, key, band).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal([]byte(raw), &current); err != nil {
				return fmt.Errorf("decoding stored value: %w", err)
			}
		}

		merged := thing.Defaults(current, value)
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encoding value: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, band, data)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxUpdateRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", id, band, err)
	}

	added, err := s.client.ZAddNX(ctx, s.indexKey(), &redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: id,
	}).Result()
	if err != nil {
		return fmt.Errorf("indexing %s: %w", id, err)
	}
	if added > 0 {
		if err := s.client.Publish(ctx, s.addedChannel(), id).Err(); err != nil {
			return fmt.Errorf("announcing %s: %w", id, err)
		}
	}

	payload, err := json.Marshal(update{ID: id, Band: band, Value: value})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.updatedChannel(), payload).Err(); err != nil {
		return fmt.Errorf("publishing update of %s/%s: %w", id, band, err)
	}
	return nil
}

// Updated implements transport.Transport.
func (s *Store) Updated(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	return s.subscribe(ctx, s.updatedChannel(), func(payload string) {
		var u update
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			s.logger.Warn("discarding malformed update notification", "error", err)
			return
		}
		rec := transport.Record{ID: u.ID, Band: u.Band, Value: u.Value, Status: transport.Available}
		if transport.Matches(rec, id, band) {
			fn(rec)
		}
	})
}

// Remove implements transport.Transport.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing %s: %w", id, err)
	}
	return nil
}

// subscribe confirms the subscription, then delivers payloads from a
// goroutine until ctx is done.
func (s *Store) subscribe(ctx context.Context, channel string, deliver func(payload string)) error {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	messages := pubsub.Channel()
	go func() {
		defer pubsub.Close() //nolint:errcheck // Closing on shutdown
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				deliver(msg.Payload)
			}
		}
	}()
	return nil
}
