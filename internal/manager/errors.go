package manager

import "errors"

var (
	// ErrInvalidArgument is returned by Connect for malformed input.
	ErrInvalidArgument = errors.New("manager: invalid argument")

	// ErrNoMatchingBinding is logged when no binding serves a requested
	// model code. It never fails a discovery session.
	ErrNoMatchingBinding = errors.New("manager: no matching binding")
)
