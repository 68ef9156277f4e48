package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUnknownStream      = errors.New("unknown stream")
	ErrSubscriptionExists = errors.New("subscription id already in use")
	ErrUnknownOp          = errors.New("unknown op")
)
