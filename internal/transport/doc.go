// Package transport defines the record store contract that Things are
// mirrored through.
//
// A record is addressed by (id, band) and holds one band of one Thing as
// a key-value map. Stores report results through callbacks so that remote
// backends can answer asynchronously; every callback may run on any
// goroutine, and consumers that mutate shared state must hand the result to
// their own run loop.
//
// Subscriptions (Added, Updated) stay active until the context passed to
// them is done.
//
// Stores that only support part of the contract embed [Unimplemented],
// which answers every operation with [ErrNotImplemented].
package transport
