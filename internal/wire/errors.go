package wire

import "errors"

// Sentinel errors matching spec.md §6's exit-code set. Both
// internal/descriptor and internal/registry return these (wrapped
// with context via fmt.Errorf's %w) so the root package can classify
// them with errors.Is at the API boundary without either internal
// package depending on the other, or on the root package.
var (
	ErrBusy            = errors.New("busy")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoMemory        = errors.New("no memory")
	ErrExists          = errors.New("exists")
	ErrNotSupported    = errors.New("not supported")
	ErrNotATypewriter  = errors.New("not a typewriter")
)
