package transport

import "errors"

// ErrNotImplemented is returned by operations a store does not support.
var ErrNotImplemented = errors.New("transport: not implemented")
