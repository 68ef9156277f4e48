package rpc

import (
	"errors"
	"fmt"
)

// Sentinel kinds for remote procedure failures.
var (
	ErrInvalidResponse = errors.New("invalid response from server")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// OperationError is a procedure the server ran and reported as failed.
type OperationError struct {
	Procedure string
	Message   string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: operation failed: %s", e.Procedure, e.Message)
}
