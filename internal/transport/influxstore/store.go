// Package influxstore records band history in InfluxDB.
//
// It is write-only: Update turns a band into one point, every other
// operation reports transport.ErrNotImplemented. Use it as the target of
// istate/send mirroring.
package influxstore

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// Writer is the part of *influxdb.Client the store uses.
type Writer interface {
	WriteBandState(thingID, band string, state map[string]any, ts time.Time) int
}

// Store writes band updates as points.
type Store struct {
	transport.Unimplemented

	writer Writer
	bands  map[string]bool
}

var _ transport.Transport = (*Store)(nil)

// New creates a store recording the given bands, istate by default.
func New(writer Writer, bands ...string) *Store {
	if len(bands) == 0 {
		bands = []string{thing.BandIState}
	}
	s := &Store{writer: writer, bands: make(map[string]bool, len(bands))}
	for _, b := range bands {
		s.bands[b] = true
	}
	return s
}

// Update implements transport.Transport. Updates to bands the store does
// not record are ignored. The point time comes from the value's
// timestamp annotation when present.
func (s *Store) Update(_ context.Context, id, band string, value map[string]any) error {
	if !s.bands[band] {
		return nil
	}
	fields, ts := thing.SplitTimestamp(value)
	if ts.IsZero() {
		ts = time.Now()
	}
	s.writer.WriteBandState(id, band, fields, ts)
	return nil
}
