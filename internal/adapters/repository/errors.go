package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrNotFound marks a lookup for an unknown participant or team.
	ErrNotFound = errors.New("record not found")
	// ErrIntegrity marks a dedup-key collision with conflicting immutable
	// fields; the incoming record is rejected and the existing one kept.
	ErrIntegrity = errors.New("data integrity violation")
)
