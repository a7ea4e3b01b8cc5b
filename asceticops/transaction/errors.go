package transaction

import "errors"

var (
	ErrMalformedTransaction = errors.New("transaction: malformed transaction context")
	ErrPositionOutOfRange   = errors.New("transaction: batch position out of range")
	ErrDuplicatePosition    = errors.New("transaction: duplicate batch position")
	ErrIncompleteBatch      = errors.New("transaction: batch has unregistered positions")
	ErrGateSettled          = errors.New("transaction: gate already opened or aborted")
	ErrBatchAborted         = errors.New("transaction: batch aborted")
	ErrUnknownIsolation     = errors.New("transaction: unknown isolation level")
)

// AbortError rejects batch slots that were not dispatched because the batch
// was aborted. It matches ErrBatchAborted and unwraps to the abort cause.
type AbortError struct {
	Cause error
}

func (e *AbortError) Error() string {
	if e.Cause == nil {
		return ErrBatchAborted.Error()
	}
	return ErrBatchAborted.Error() + ": " + e.Cause.Error()
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

func (e *AbortError) Is(target error) bool {
	return target == ErrBatchAborted
}
