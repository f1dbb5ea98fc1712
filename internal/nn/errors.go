package nn

import "errors"

// Construction errors. Backend failures during Forward are not wrapped in
// any of these; they surface exactly as the backend returned them.
var (
	// ErrUnsupportedActivation is returned for an activation name outside
	// the supported set.
	ErrUnsupportedActivation = errors.New("unsupported activation")

	// ErrInvalidGrouping is returned when channel counts are not divisible
	// by the requested convolution groups.
	ErrInvalidGrouping = errors.New("invalid channel grouping")

	// ErrInvalidConfig is returned for non-positive channel counts, kernel
	// sizes, strides and similar malformed block configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingKey is returned by LoadStateDict when a required tensor is absent.
	ErrMissingKey = errors.New("missing state dict key")
)
