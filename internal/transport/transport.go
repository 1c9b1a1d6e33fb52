package transport

import "context"

// Status qualifies a Record returned by Get or Updated.
type Status int

const (
	// Available means Value holds the band.
	Available Status = iota

	// OnDemand means the record exists but its value must be fetched
	// with Get.
	OnDemand

	// Missing means the record or band does not exist.
	Missing
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case OnDemand:
		return "on_demand"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// DirectoryBands is the key of a directory record listing a record's bands.
const DirectoryBands = "bands"

// Record is one band of one record.
type Record struct {
	ID     string
	Band   string
	Value  map[string]any
	Status Status
}

// Params carries store-specific listing options.
type Params map[string]any

// ListFunc receives ids one at a time. List finishes with a single call
// where end is true and id is empty.
type ListFunc func(id string, end bool)

// RecordFunc receives records from Get and Updated.
type RecordFunc func(Record)

// Transport is a record store.
type Transport interface {
	// List streams every record id, then signals the end.
	List(ctx context.Context, params Params, fn ListFunc) error

	// Added streams ids of records created from now on. It never signals
	// the end; cancel ctx to stop.
	Added(ctx context.Context, params Params, fn ListFunc) error

	// Get fetches one band. An empty band asks for the directory record,
	// whose Value lists the available bands under DirectoryBands.
	Get(ctx context.Context, id, band string, fn RecordFunc) error

	// Update upserts value into the band. Keys not present in value are
	// kept.
	Update(ctx context.Context, id, band string, value map[string]any) error

	// Updated reports writes as they were made: the record carries the
	// written value, not the merged band. An empty id or band matches
	// everything.
	Updated(ctx context.Context, id, band string, fn RecordFunc) error

	// Remove deletes every band of a record.
	Remove(ctx context.Context, id string) error
}

// Unimplemented answers every operation with ErrNotImplemented. Embed it
// in stores that only support part of the contract.
type Unimplemented struct{}

// List implements Transport.
func (Unimplemented) List(context.Context, Params, ListFunc) error { return ErrNotImplemented }

// Added implements Transport.
func (Unimplemented) Added(context.Context, Params, ListFunc) error { return ErrNotImplemented }

// Get implements Transport.
func (Unimplemented) Get(context.Context, string, string, RecordFunc) error {
	return ErrNotImplemented
}

// Update implements Transport.
func (Unimplemented) Update(context.Context, string, string, map[string]any) error {
	return ErrNotImplemented
}

// Updated implements Transport.
func (Unimplemented) Updated(context.Context, string, string, RecordFunc) error {
	return ErrNotImplemented
}

// Remove implements Transport.
func (Unimplemented) Remove(context.Context, string) error { return ErrNotImplemented }

// Matches reports whether r passes an Updated filter.
func Matches(r Record, id, band string) bool {
	return (id == "" || r.ID == id) && (band == "" || r.Band == band)
}
