package provider

import "errors"

// Sentinel kinds for provider errors.
var (
	// ErrUnavailable marks a fetch that exhausted its retry budget. The
	// refresh cycle continues without that team's data.
	ErrUnavailable = errors.New("results provider unavailable")
)
