package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNoProcedures    = errors.New("remote procedures not configured")
	ErrUnauthenticated = errors.New("no signed-in user")
)
