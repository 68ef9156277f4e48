package store

import "errors"

// Sentinel kinds for backend errors.
var (
	ErrStopped     = errors.New("listener stopped")
	ErrInvalidPath = errors.New("invalid document path")
	ErrNotFound    = errors.New("document not found")
)
