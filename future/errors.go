package future

import "errors"

var (
	// ErrInvalidCap is returned by New when vpPerLoc is not positive. A
	// zero cap would degenerate every location into a permanent stall,
	// so it is rejected outright rather than silently pausing all
	// futures on every shepherd.
	ErrInvalidCap = errors.New("future: vp cap per location must be positive")

	// ErrInvalidRuntime is returned by New when the supplied Runtime
	// reports zero (or a negative) shepherd count.
	ErrInvalidRuntime = errors.New("future: runtime must report at least one shepherd")

	// ErrNotInitialized is returned by every error-returning Controller
	// method invoked on a nil or zero-value *Controller (Yield on such a
	// Controller returns false) — the Go analogue of calling future_fork
	// before future_init, left undefined by the source.
	ErrNotInitialized = errors.New("future: controller not initialized")

	// ErrClosed is returned by the error-returning Controller methods
	// other than Close invoked after Close has completed.
	ErrClosed = errors.New("future: controller closed")
)
