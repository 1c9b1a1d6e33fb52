// Package sqlitestore implements a record store on SQLite.
//
// Each (id, band) pair is one row of the records table with the band held
// as a JSON object. A things table lists record ids in creation order.
// Added and Updated subscriptions are served in-process: they see writes
// made through this Store, not writes by other processes sharing the file.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// Store is a SQLite-backed transport.Transport.
//
// The schema is created by the embedded migrations; run
// db.Migrate(ctx, migrations.FS) before using the store.
type Store struct {
	db   *database.DB
	feed transport.Feed
}

var _ transport.Transport = (*Store)(nil)

// New creates a store on an open, migrated database.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// List implements transport.Transport.
func (s *Store) List(ctx context.Context, _ transport.Params, fn transport.ListFunc) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM things ORDER BY created_at, rowid`)
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating record ids: %w", err)
	}

	for _, id := range ids {
		fn(id, false)
	}
	fn("", true)
	return nil
}

// Added implements transport.Transport.
func (s *Store) Added(ctx context.Context, _ transport.Params, fn transport.ListFunc) error {
	return s.feed.Added(ctx, fn)
}

// Get implements transport.Transport.
func (s *Store) Get(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	if band == "" {
		return s.directory(ctx, id, fn)
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE id = ? AND band = ?`, id, band,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		fn(transport.Record{ID: id, Band: band, Status: transport.Missing})
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying record %s/%s: %w", id, band, err)
	}

	value, err := decode(raw)
	if err != nil {
		return fmt.Errorf("decoding record %s/%s: %w", id, band, err)
	}
	fn(transport.Record{ID: id, Band: band, Value: value, Status: transport.Available})
	return nil
}

func (s *Store) directory(ctx context.Context, id string, fn transport.RecordFunc) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM things WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("querying record %s: %w", id, err)
	}
	if exists == 0 {
		fn(transport.Record{ID: id, Status: transport.Missing})
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT band FROM records WHERE id = ? ORDER BY band`, id)
	if err != nil {
		return fmt.Errorf("listing bands of %s: %w", id, err)
	}
	defer rows.Close()

	bands := []string{}
	for rows.Next() {
		var band string
		if err := rows.Scan(&band); err != nil {
			return fmt.Errorf("scanning band: %w", err)
		}
		bands = append(bands, band)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating bands: %w", err)
	}

	fn(transport.Record{
		ID:     id,
		Value:  map[string]any{transport.DirectoryBands: bands},
		Status: transport.Available,
	})
	return nil
}

// Update implements transport.Transport. The read-merge-write runs in one
// transaction.
func (s *Store) Update(ctx context.Context, id, band string, value map[string]any) error {
	var added bool
	now := time.Now().UTC().Format(time.RFC3339Nano)

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO things (id, created_at) VALUES (?, ?)`, id, now)
		if err != nil {
			return fmt.Errorf("registering record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			added = true
		}

		var raw string
		err = tx.QueryRowContext(ctx,
			`SELECT value FROM records WHERE id = ? AND band = ?`, id, band,
		).Scan(&raw)
		var current map[string]any
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("reading record: %w", err)
		default:
			if current, err = decode(raw); err != nil {
				return fmt.Errorf("decoding record: %w", err)
			}
		}

		merged := thing.Defaults(current, value)
		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO records (id, band, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (id, band) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			id, band, string(data), now)
		if err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating %s/%s: %w", id, band, err)
	}

	if added {
		s.feed.PublishAdded(id)
	}
	s.feed.PublishUpdated(transport.Record{ID: id, Band: band, Value: thing.CloneMap(value), Status: transport.Available})
	return nil
}

// Updated implements transport.Transport.
func (s *Store) Updated(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	return s.feed.Updated(ctx, id, band, fn)
}

// Remove implements transport.Transport.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
			return fmt.Errorf("removing bands of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM things WHERE id = ?`, id); err != nil {
			return fmt.Errorf("removing record %s: %w", id, err)
		}
		return nil
	})
}

func decode(raw string) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	return value, nil
}
