package engine

import (
	"errors"
	"fmt"
)

var (
	ErrTransactionClosed   = errors.New("engine: transaction is closed or unknown")
	ErrTransactionExpired  = errors.New("engine: transaction timed out")
	ErrTransactionStart    = errors.New("engine: unable to start transaction in time")
	ErrRecordNotFound      = errors.New("engine: record not found")
	ErrUnsupportedAction   = errors.New("engine: unsupported action")
	ErrInteractiveDisabled = errors.New("engine: interactive transactions are not supported")
)

// BatchError fails a whole batch. Index is the position of the slot whose
// operation caused the failure.
type BatchError struct {
	Index int
	Cause error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch request %d failed: %v", e.Index, e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

func (e *BatchError) BatchIndex() int {
	return e.Index
}

var ErrInvalidArguments = errors.New("engine: invalid operation arguments")
