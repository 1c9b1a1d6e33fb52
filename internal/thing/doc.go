// Package thing models logical devices ("Things") as bundles of
// timestamped state bands.
//
// # Bands
//
// Every Thing carries the same five bands:
//   - meta: descriptive metadata (names, vendor, identifiers)
//   - istate: observed state reported by the device
//   - ostate: desired state waiting to be pushed to the device
//   - connection: link status such as "reachable"
//   - model: structural description copied from the binding template
//
// A band maps keys to (value, timestamp). The only mutation path is Update,
// which can reject per key any value whose timestamp is not strictly newer
// than the stored one. Listeners see a snapshot of the band taken after the
// update, in mutation order.
//
// # Identity
//
// MakeID derives a universal id from the device's local id, its model code
// and the runner id, so repeated discovery passes produce the same Thing.
//
// # Bridge slot
//
// A Thing holds one swappable bridge reference. Rebinding replaces the
// reference and leaves identity and band contents alone.
package thing
