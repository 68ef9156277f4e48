package worker

import "errors"

// ErrStop may be returned by a Handler to end the worker loop without
// logging it as a failure.
var ErrStop = errors.New("worker stop requested")
