package hub

import "errors"

var (
	// ErrNotFound is returned when an operation names an agent with no record
	// and the operation does not create one.
	ErrNotFound = errors.New("agent not found")

	// ErrInvalidValue is returned for a permission value outside ALLOW/DENIED.
	ErrInvalidValue = errors.New("invalid permission value")

	// ErrInvalidArgument covers malformed ids, commands and report payloads.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthorized is returned by the session gate for a bad identity or secret.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited is returned when login attempts arrive faster than allowed.
	ErrRateLimited = errors.New("too many login attempts")
)
