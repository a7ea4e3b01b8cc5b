package promise

import "errors"

var (
	ErrBatchAlreadyRequested = errors.New("promise: batch execution already requested")
	ErrAlreadyDispatched     = errors.New("promise: operation already dispatched")
	ErrNotBatchable          = errors.New("promise: operation is not batchable")
)
