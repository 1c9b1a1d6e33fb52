package thing

import "errors"

var (
	// ErrUnknownBand is returned for band names a Thing does not carry.
	ErrUnknownBand = errors.New("thing: unknown band")

	// ErrStaleUpdate marks keys rejected by the timestamp check. Update
	// drops such keys silently and only reports them in UpdateResult.
	ErrStaleUpdate = errors.New("thing: stale update")
)
