package diag

import "errors"

// Failure classes shared by the loader, the builder and the composition
// engine. Callers wrap them with context and match with errors.Is.
var (
	// ErrMalformedDescription reports a dangling task, instance, port or fifo
	// reference in the task-hierarchy description.
	ErrMalformedDescription = errors.New("malformed description")
	// ErrUnsupportedArgumentCategory reports an argument category the
	// engine does not know how to wire.
	ErrUnsupportedArgumentCategory = errors.New("unsupported argument category")
	// ErrAmbiguousWidth reports a bit range that is not a pair of integer
	// literals where an exact width is required.
	ErrAmbiguousWidth = errors.New("ambiguous width")
	// ErrNamingCollision reports a second declaration of a name that already
	// exists in a module.
	ErrNamingCollision = errors.New("naming collision")
)
