package transaction

import "fmt"

type Kind string

const (
	KindBatch       Kind = "batch"
	KindInteractive Kind = "itx"
)

// Transaction is the transactional mode a deferred operation runs under.
// The set of implementations is closed: Batch and Interactive.
type Transaction interface {
	Kind() Kind
	Validate() error
	isTransaction()
}

// Batch is one slot of a sequential batch. All slots of a batch share ID,
// IsolationLevel and Lock; Index is the slot's zero-based position.
type Batch struct {
	ID             int64
	Index          int
	IsolationLevel IsolationLevel
	Lock           *Gate
}

func (Batch) Kind() Kind {
	return KindBatch
}

func (b Batch) Validate() error {
	if b.Lock == nil {
		return fmt.Errorf("%w: batch %d slot %d has no gate", ErrMalformedTransaction, b.ID, b.Index)
	}
	if b.Index < 0 || b.Index >= b.Lock.Size() {
		return fmt.Errorf("%w: position %d of %d", ErrPositionOutOfRange, b.Index, b.Lock.Size())
	}
	if !b.IsolationLevel.IsValid() {
		return fmt.Errorf("%w: %q", ErrMalformedTransaction, string(b.IsolationLevel))
	}
	return nil
}

func (Batch) isTransaction() {}

// Interactive is a handle to an interactive transaction opened by the engine.
// Payload is engine specific and forwarded untouched.
type Interactive struct {
	ID      string
	Payload any
}

func (Interactive) Kind() Kind {
	return KindInteractive
}

func (t Interactive) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: interactive transaction without id", ErrMalformedTransaction)
	}
	return nil
}

func (Interactive) isTransaction() {}
