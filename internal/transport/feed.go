package transport

import (
	"context"

	"github.com/nerrad567/gray-logic-things/internal/notify"
)

// Feed fans out Added and Updated notifications to subscribers. Stores
// embed or hold one and publish after each successful write.
type Feed struct {
	updated notify.Hub[Record]
	added   notify.Hub[string]
}

// Updated subscribes fn to records matching id and band until ctx is done.
func (f *Feed) Updated(ctx context.Context, id, band string, fn RecordFunc) error {
	cancel := f.updated.Subscribe(func(r Record) {
		if ctx.Err() == nil && Matches(r, id, band) {
			fn(r)
		}
	})
	context.AfterFunc(ctx, cancel)
	return nil
}

// Added subscribes fn to new record ids until ctx is done.
func (f *Feed) Added(ctx context.Context, fn ListFunc) error {
	cancel := f.added.Subscribe(func(id string) {
		if ctx.Err() == nil {
			fn(id, false)
		}
	})
	context.AfterFunc(ctx, cancel)
	return nil
}

// PublishUpdated delivers r to matching Updated subscribers.
func (f *Feed) PublishUpdated(r Record) {
	f.updated.Emit(r)
}

// PublishAdded delivers id to Added subscribers.
func (f *Feed) PublishAdded(id string) {
	f.added.Emit(id)
}

// Subscribers returns the number of active Updated and Added subscriptions.
func (f *Feed) Subscribers() int {
	return f.updated.Len() + f.added.Len()
}
