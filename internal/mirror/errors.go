package mirror

import "errors"

// ErrConfiguration is returned for malformed policies, before any wiring
// takes effect.
var ErrConfiguration = errors.New("mirror: invalid configuration")
