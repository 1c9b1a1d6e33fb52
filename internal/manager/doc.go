// Package manager finds Things through bridge bindings and keeps track of
// which bridge instance currently owns each Thing.
//
// A discovery request ([Manager.Connect]) returns an empty [thing.Set]
// immediately. Bridge exemplars are created and asked to discover on later
// run-loop turns, so callers can subscribe to the Set before anything is
// added to it.
//
// Identity:
//
// Every instance a bridge reports is turned into a candidate Thing whose
// universal id is derived from the bridge's device id, the binding's model
// code and the runner id. When a Thing with that id already exists the
// candidate is only accepted if the existing Thing is unreachable and the
// candidate is reachable; the candidate's bridge is then bound to the
// existing Thing, so listeners held on the Thing keep working.
//
// Thread Safety:
//
// Discovery and binding run on the [runloop.Loop]. Bridge callbacks may
// arrive on any goroutine; they are posted to the loop before they touch a
// Thing. Read accessors are safe from any goroutine.
package manager
