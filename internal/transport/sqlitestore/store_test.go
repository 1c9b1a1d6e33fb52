package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-things/internal/transport"
	"github.com/nerrad567/gray-logic-things/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "records.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return New(db)
}

func get(t *testing.T, s *Store, id, band string) transport.Record {
	t.Helper()
	var rec transport.Record
	if err := s.Get(context.Background(), id, band, func(r transport.Record) { rec = r }); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return rec
}

func TestStore_UpdateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Update(ctx, "urn:a", "istate", map[string]any{"on": true, "level": 10}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Update(ctx, "urn:a", "istate", map[string]any{"level": 20}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	rec := get(t, s, "urn:a", "istate")
	if rec.Status != transport.Available {
		t.Fatalf("Status = %v, want available", rec.Status)
	}
	if rec.Value["on"] != true || rec.Value["level"] != float64(20) {
		t.Errorf("Value = %v, want merged state", rec.Value)
	}

	if rec := get(t, s, "urn:a", "ostate"); rec.Status != transport.Missing {
		t.Errorf("missing band Status = %v", rec.Status)
	}
	if rec := get(t, s, "urn:none", "istate"); rec.Status != transport.Missing {
		t.Errorf("missing record Status = %v", rec.Status)
	}
}

func TestStore_Directory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Update(ctx, "urn:a", "meta", map[string]any{"x": 1})
	s.Update(ctx, "urn:a", "istate", map[string]any{"on": true})

	rec := get(t, s, "urn:a", "")
	bands, _ := rec.Value[transport.DirectoryBands].([]string)
	if len(bands) != 2 || bands[0] != "istate" || bands[1] != "meta" {
		t.Errorf("directory = %v, want [istate meta]", rec.Value)
	}
	if rec := get(t, s, "urn:none", ""); rec.Status != transport.Missing {
		t.Errorf("directory of missing record Status = %v", rec.Status)
	}
}

func TestStore_ListAddedRemove(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var added []string
	s.Added(ctx, nil, func(id string, _ bool) { added = append(added, id) })

	var updates int
	s.Updated(ctx, "urn:b", "", func(transport.Record) { updates++ })

	s.Update(ctx, "urn:a", "istate", map[string]any{"on": true})
	s.Update(ctx, "urn:b", "istate", map[string]any{"on": true})
	s.Update(ctx, "urn:b", "meta", map[string]any{"x": 1})

	if len(added) != 2 {
		t.Errorf("added = %v, want 2 ids", added)
	}
	if updates != 2 {
		t.Errorf("updates for urn:b = %d, want 2", updates)
	}

	if err := s.Remove(ctx, "urn:a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	var ids []string
	s.List(ctx, nil, func(id string, end bool) {
		if !end {
			ids = append(ids, id)
		}
	})
	if len(ids) != 1 || ids[0] != "urn:b" {
		t.Errorf("List() = %v, want [urn:b]", ids)
	}
	if rec := get(t, s, "urn:a", "istate"); rec.Status != transport.Missing {
		t.Error("removed record should be missing")
	}
}
