package stream

import "errors"

// Sentinel kinds for stream termination.
var (
	// ErrCanceled ends a stream its consumer cancelled.
	ErrCanceled = errors.New("stream canceled")
	// ErrEnded ends a finite stream that delivered everything it had.
	ErrEnded = errors.New("stream ended")
)
