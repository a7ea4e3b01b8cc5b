package engine

import (
	"context"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// TransactionManager is implemented by engines that support interactive
// transactions.
type TransactionManager interface {
	StartTransaction(ctx context.Context, opts transaction.InteractiveOptions) (transaction.Interactive, error)
	CommitTransaction(ctx context.Context, tx transaction.Interactive) error
	RollbackTransaction(ctx context.Context, tx transaction.Interactive) error
}
