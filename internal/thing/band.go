package thing

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/notify"
)

// Change describes one accepted band update.
type Change struct {
	// Band is the band name.
	Band string

	// Changed holds only the keys whose value changed.
	Changed map[string]any

	// State is the whole band after the update.
	State map[string]any

	// Timestamp is the update timestamp.
	Timestamp time.Time
}

// UpdateOptions controls a band update. The zero value notifies
// listeners, skips the timestamp check, and stamps the update with now.
type UpdateOptions struct {
	// Timestamp is the time of the update. Zero means time.Now().
	Timestamp time.Time

	// CheckTimestamp rejects keys whose stored timestamp is not older.
	CheckTimestamp bool

	// Silent suppresses listener notification.
	Silent bool

	// Validate drops keys the Thing's model does not declare. Only
	// meaningful through Thing.Update.
	Validate bool
}

// UpdateResult reports what an update did.
type UpdateResult struct {
	Changed map[string]any
	Stale   []string
	Invalid []string
}

// StaleErr returns an ErrStaleUpdate naming the rejected keys, or nil.
func (r UpdateResult) StaleErr() error {
	if len(r.Stale) == 0 {
		return nil
	}
	keys := slices.Clone(r.Stale)
	slices.Sort(keys)
	return fmt.Errorf("%w: %s", ErrStaleUpdate, strings.Join(keys, ", "))
}

type entry struct {
	value any
	ts    time.Time
}

// Band is a named key-value partition with per-key timestamps.
//
// Thread Safety:
//   - Reads are safe from any goroutine. Listeners run on the goroutine
//     that called Update, after the band lock is released.
type Band struct {
	name string

	mu      sync.RWMutex
	entries map[string]entry

	listeners notify.Hub[Change]
}

// NewBand returns an empty band.
func NewBand(name string) *Band {
	return &Band{name: name, entries: make(map[string]entry)}
}

// Name returns the band name.
func (b *Band) Name() string {
	return b.name
}

// Update merges values into the band.
//
// With opts.CheckTimestamp, a key whose stored timestamp is equal to or
// newer than the update timestamp keeps its value and is reported in
// UpdateResult.Stale. Keys whose value did not change are refreshed but not
// reported as changed. Listeners fire once when at least one key changed.
func (b *Band) Update(values map[string]any, opts UpdateOptions) UpdateResult {
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res := UpdateResult{Changed: make(map[string]any)}

	b.mu.Lock()
	for k, v := range values {
		old, exists := b.entries[k]
		if opts.CheckTimestamp && exists && !ts.After(old.ts) {
			res.Stale = append(res.Stale, k)
			continue
		}
		b.entries[k] = entry{value: cloneValue(v), ts: ts}
		if !exists || !Equal(old.value, v) {
			res.Changed[k] = cloneValue(v)
		}
	}
	var state map[string]any
	if len(res.Changed) > 0 && !opts.Silent {
		state = b.stateLocked()
	}
	b.mu.Unlock()

	if state != nil {
		b.listeners.Emit(Change{
			Band:      b.name,
			Changed:   CloneMap(res.Changed),
			State:     state,
			Timestamp: ts,
		})
	}
	return res
}

// Clear removes every key without notifying listeners.
func (b *Band) Clear() {
	b.mu.Lock()
	b.entries = make(map[string]entry)
	b.mu.Unlock()
}

// State returns a deep copy of the band's values.
func (b *Band) State() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stateLocked()
}

func (b *Band) stateLocked() map[string]any {
	out := make(map[string]any, len(b.entries))
	for k, e := range b.entries {
		out[k] = cloneValue(e.value)
	}
	return out
}

// Get returns the value stored for key.
func (b *Band) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	return cloneValue(e.value), true
}

// Timestamp returns the newest key timestamp, or zero for an empty band.
func (b *Band) Timestamp() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var latest time.Time
	for _, e := range b.entries {
		if e.ts.After(latest) {
			latest = e.ts
		}
	}
	return latest
}

// KeyTimestamp returns the timestamp stored for key.
func (b *Band) KeyTimestamp(key string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	return e.ts, ok
}

// Len returns the number of keys.
func (b *Band) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// On registers fn for accepted, non-silent changes.
func (b *Band) On(fn func(Change)) (cancel func()) {
	return b.listeners.Subscribe(fn)
}

// replace installs a clone of values with timestamp ts, without notifying.
func (b *Band) replace(values map[string]any, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]entry, len(values))
	for k, v := range values {
		b.entries[k] = entry{value: cloneValue(v), ts: ts}
	}
}
