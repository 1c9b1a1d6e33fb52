package mirror

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/gray-logic-things/internal/thing"
	"github.com/nerrad567/gray-logic-things/internal/transport"
)

// DefaultScope is the band scope of a BindPolicy without Bands.
var DefaultScope = []string{thing.BandIState, thing.BandOState, thing.BandModel, thing.BandMeta}

// BindPolicy controls how a secondary store follows a primary store.
//
// Unset selectors use their defaults: Updated is off, everything else
// covers the whole scope.
type BindPolicy struct {
	// Bands is the scope All() refers to. Empty means DefaultScope.
	Bands []string `yaml:"bands"`

	// Update forwards primary writes to the secondary.
	Update Selector `yaml:"update"`

	// Updated forwards secondary writes back to the primary.
	Updated Selector `yaml:"updated"`

	// Get answers secondary reads from the primary.
	Get Selector `yaml:"get"`

	// List answers secondary listings from the primary. Band independent:
	// any selected band enables it.
	List Selector `yaml:"list"`

	// Added answers secondary Added subscriptions from the primary. Band
	// independent like List.
	Added Selector `yaml:"added"`

	// Copy copies existing and future primary records into the secondary
	// once.
	Copy Selector `yaml:"copy"`
}

// policyKeys are the keys ParseBindPolicy accepts.
var policyKeys = []string{"bands", "update", "updated", "get", "list", "added", "copy"}

// ParseBindPolicy decodes a policy from a generic map, as found in
// configuration. Any value that is neither a boolean nor a band list is
// rejected with ErrConfiguration.
func ParseBindPolicy(m map[string]any) (BindPolicy, error) {
	var p BindPolicy
	for key, v := range m {
		if !slices.Contains(policyKeys, key) {
			return BindPolicy{}, fmt.Errorf("%w: unknown policy key %q", ErrConfiguration, key)
		}
		if key == "bands" {
			sel, err := ParseSelector(v)
			if err != nil || sel.all || len(sel.bands) == 0 {
				return BindPolicy{}, fmt.Errorf("%w: bands must be a list of band names", ErrConfiguration)
			}
			p.Bands = sel.bands
			continue
		}

		sel, err := ParseSelector(v)
		if err != nil {
			return BindPolicy{}, fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case "update":
			p.Update = sel
		case "updated":
			p.Updated = sel
		case "get":
			p.Get = sel
		case "list":
			p.List = sel
		case "added":
			p.Added = sel
		case "copy":
			p.Copy = sel
		}
	}
	return p, nil
}

// resolved is a BindPolicy with defaults applied.
type resolved struct {
	update, updated, get, copy map[string]bool
	list, added                bool
}

func (p BindPolicy) resolve() (resolved, error) {
	scope := p.Bands
	if len(scope) == 0 {
		scope = DefaultScope
	}
	for _, sel := range []Selector{p.Update, p.Updated, p.Get, p.List, p.Added, p.Copy} {
		for _, b := range sel.bands {
			if b == "" {
				return resolved{}, fmt.Errorf("%w: empty band name", ErrConfiguration)
			}
		}
	}
	return resolved{
		update:  p.Update.resolve(scope, true),
		updated: p.Updated.resolve(scope, false),
		get:     p.Get.resolve(scope, true),
		copy:    p.Copy.resolve(scope, true),
		list:    len(p.List.resolve(scope, true)) > 0,
		added:   len(p.Added.resolve(scope, true)) > 0,
	}, nil
}

// Bind makes secondary follow primary according to policy, until ctx is
// done, and returns secondary as seen through the policy: its Get, List
// and Added are answered by primary where the policy says so. Callers
// should use the returned Transport in place of secondary.
//
// The policy is validated before anything is wired. When wiring fails
// part way, the subscriptions already made are cancelled.
func Bind(ctx context.Context, primary, secondary transport.Transport, policy BindPolicy) (_ transport.Transport, err error) {
	r, err := policy.resolve()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		if err != nil {
			cancel()
		}
	}()

	b := &binder{primary: primary, secondary: secondary, forwarded: make(map[forwardKey]map[string]any)}

	if len(r.update) > 0 {
		err := primary.Updated(ctx, "", "", func(rec transport.Record) {
			if r.update[rec.Band] {
				b.forward(ctx, primary, secondary, toSecondary, rec)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("following primary updates: %w", err)
		}
	}

	if len(r.updated) > 0 {
		err := secondary.Updated(ctx, "", "", func(rec transport.Record) {
			if r.updated[rec.Band] {
				b.forward(ctx, secondary, primary, toPrimary, rec)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("following secondary updates: %w", err)
		}
	}

	if len(r.copy) > 0 {
		if err := b.copyAll(ctx, r.copy); err != nil {
			return nil, err
		}
	}

	return &view{
		Transport: secondary,
		primary:   primary,
		get:       r.get,
		list:      r.list,
		added:     r.added,
	}, nil
}

type direction int

const (
	toSecondary direction = iota
	toPrimary
)

type forwardKey struct {
	dir      direction
	id, band string
}

// binder forwards records between two stores. It remembers the last
// value forwarded in each direction so a write that comes back from the
// other side is not forwarded again.
type binder struct {
	primary, secondary transport.Transport

	mu        sync.Mutex
	forwarded map[forwardKey]map[string]any
}

func (b *binder) forward(ctx context.Context, from, to transport.Transport, dir direction, rec transport.Record) {
	if rec.Status == transport.OnDemand {
		from.Get(ctx, rec.ID, rec.Band, func(full transport.Record) { //nolint:errcheck // Reported through the callback status
			if full.Status == transport.Available {
				b.forward(ctx, from, to, dir, full)
			}
		})
		return
	}
	if rec.Status != transport.Available || rec.Value == nil {
		return
	}

	back := toPrimary
	if dir == toPrimary {
		back = toSecondary
	}

	b.mu.Lock()
	if last, ok := b.forwarded[forwardKey{back, rec.ID, rec.Band}]; ok && thing.Equal(last, rec.Value) {
		delete(b.forwarded, forwardKey{back, rec.ID, rec.Band})
		b.mu.Unlock()
		return
	}
	b.forwarded[forwardKey{dir, rec.ID, rec.Band}] = thing.CloneMap(rec.Value)
	b.mu.Unlock()

	to.Update(ctx, rec.ID, rec.Band, rec.Value) //nolint:errcheck // Per-record failures do not stop the binding
}

// copyAll pushes every existing and future primary record into the
// secondary for the selected bands.
func (b *binder) copyAll(ctx context.Context, bands map[string]bool) error {
	copyID := func(id string, end bool) {
		if end {
			return
		}
		for band := range bands {
			b.primary.Get(ctx, id, band, func(rec transport.Record) { //nolint:errcheck // Missing records are skipped
				if rec.Status == transport.Available && rec.Value != nil {
					b.secondary.Update(ctx, id, band, rec.Value) //nolint:errcheck // Per-record failures do not stop the copy
				}
			})
		}
	}

	if err := b.primary.Added(ctx, nil, copyID); err != nil {
		return fmt.Errorf("following primary additions: %w", err)
	}
	if err := b.primary.List(ctx, nil, copyID); err != nil {
		return fmt.Errorf("listing primary records: %w", err)
	}
	return nil
}

// view is a secondary store with reads redirected to the primary.
type view struct {
	transport.Transport

	primary transport.Transport
	get     map[string]bool
	list    bool
	added   bool
}

// Get answers from the primary for selected bands and for directory
// requests when any band is selected.
func (v *view) Get(ctx context.Context, id, band string, fn transport.RecordFunc) error {
	if (band == "" && len(v.get) > 0) || v.get[band] {
		return v.primary.Get(ctx, id, band, fn)
	}
	return v.Transport.Get(ctx, id, band, fn)
}

// List implements transport.Transport.
func (v *view) List(ctx context.Context, params transport.Params, fn transport.ListFunc) error {
	if v.list {
		return v.primary.List(ctx, params, fn)
	}
	return v.Transport.List(ctx, params, fn)
}

// Added implements transport.Transport.
func (v *view) Added(ctx context.Context, params transport.Params, fn transport.ListFunc) error {
	if v.added {
		return v.primary.Added(ctx, params, fn)
	}
	return v.Transport.Added(ctx, params, fn)
}
