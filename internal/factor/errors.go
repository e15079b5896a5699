package factor

import "errors"

// Build failure taxonomy. Callers use errors.Is to distinguish "fix your
// request" (ErrInvalidParameter) from "not enough usable data in the
// window" (ErrInsufficientData).
var (
	// ErrInsufficientData means fewer valid dates survived interpolation
	// than the factor model needs (n_components + 1).
	ErrInsufficientData = errors.New("insufficient valid dates for factor model")

	// ErrInvalidParameter means the requested lookback or component count is
	// out of bounds. Never retried.
	ErrInvalidParameter = errors.New("invalid factor model parameter")
)

// Parameter ceilings. Inputs are bounded instead of cancellable: capping
// the window and component count keeps the worst-case build cost fixed.
const (
	MinLookbackDays = 2
	MaxLookbackDays = 400
	MaxComponents   = 10
)
