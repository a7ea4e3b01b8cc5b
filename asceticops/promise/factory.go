package promise

import (
	"context"
	"fmt"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// Factory creates promises bound to one engine and an optional default
// interactive transaction.
type Factory struct {
	engine Engine
	tx     transaction.Transaction
}

// NewFactory accepts nil or an interactive transaction as default. A batch
// slot belongs to a single promise and cannot be a default.
func NewFactory(engine Engine, tx transaction.Transaction) (*Factory, error) {
	switch t := tx.(type) {
	case nil:
	case transaction.Interactive:
		if err := t.Validate(); err != nil {
			return nil, err
		}
	case transaction.Batch:
		return nil, fmt.Errorf("%w: batch slot as default transaction", transaction.ErrMalformedTransaction)
	default:
		return nil, fmt.Errorf("%w: %T", transaction.ErrMalformedTransaction, tx)
	}
	return &Factory{engine: engine, tx: tx}, nil
}

// Make creates a promise for spec. Outside of an interactive transaction the
// result also implements Batchable.
func Make[T any](ctx context.Context, f *Factory, spec operation.Spec) OperationPromise[T] {
	if itx, ok := f.tx.(transaction.Interactive); ok {
		return NewInTransaction[T](ctx, f.engine, spec, itx)
	}
	return New[T](ctx, f.engine, spec)
}
