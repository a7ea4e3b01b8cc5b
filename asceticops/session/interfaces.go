package session

import (
	"context"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

type SessionCallback func(Session) error

type Session interface {
	Context() context.Context
	Atomic(SessionCallback) error
}

type SessionPoolCallback func(Session) error

type SessionPool interface {
	Session(context.Context, SessionPoolCallback) error
}

type TxOptions struct {
	IsolationLevel transaction.IsolationLevel
}

// Db

type Result interface {
	RowsAffected() (int64, error)
	Command() string
}

type Rows interface {
	Close() error
	Err() error
	Next() bool
	Columns() []string
	Values() ([]any, error)
}

type DbExecutor interface {
	Exec(query string, args ...any) (Result, error)
}

type DbQuerier interface {
	Query(query string, args ...any) (Rows, error)
}

type DbConnection interface {
	DbExecutor
	DbQuerier
}

type DbSession interface {
	Session
	Connection() DbConnection
	// AtomicWith is Atomic with explicit transaction options. Nested calls
	// use savepoints and ignore the isolation level.
	AtomicWith(TxOptions, SessionCallback) error
}

func ExtractConnection(s Session) DbConnection {
	return s.(DbSession).Connection()
}
