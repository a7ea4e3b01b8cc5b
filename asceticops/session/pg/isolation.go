package pg

import (
	"github.com/jackc/pgx/v5"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// PostgreSQL implements REPEATABLE READ as snapshot isolation.
var isoLevels = map[transaction.IsolationLevel]pgx.TxIsoLevel{
	transaction.ReadUncommitted: pgx.ReadUncommitted,
	transaction.ReadCommitted:   pgx.ReadCommitted,
	transaction.RepeatableRead:  pgx.RepeatableRead,
	transaction.Snapshot:        pgx.RepeatableRead,
	transaction.Serializable:    pgx.Serializable,
}

func TxOptions(opts session.TxOptions) pgx.TxOptions {
	return pgx.TxOptions{IsoLevel: isoLevels[opts.IsolationLevel]}
}
