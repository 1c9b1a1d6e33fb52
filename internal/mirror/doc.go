// Package mirror keeps Thing bands and record stores in step.
//
// [Engine.WireThings] mirrors the bands of every Thing in a Set to and
// from one transport.Transport, per band and per direction, as selected by
// a [ThingPolicy]. [Bind] makes one store follow another.
//
// Nothing is mirrored unless a policy enables it. Receive paths hand every
// store callback to the run loop before a Thing is touched, and values
// equal to the last value sent for the same Thing and band are dropped as
// echoes.
package mirror
