package pg

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine/collector"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/signals"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

const engineType = "pg"

type Option func(*Engine)

func WithCompiler(c Compiler) Option {
	return func(e *Engine) {
		e.compiler = c
	}
}

// Engine executes operations on PostgreSQL sessions.
type Engine struct {
	pool      session.SessionPool
	compiler  Compiler
	collector *collector.Collector
	sessions  *xsync.MapOf[string, *interactiveSession]
	log       *logrus.Entry
}

type queryObservable interface {
	OnQueryEnded() signals.Signal[session.QueryEndedEvent]
}

func NewEngine(pool session.SessionPool, opts ...Option) *Engine {
	e := &Engine{
		pool:     pool,
		sessions: xsync.NewMapOf[string, *interactiveSession](),
		log:      logging.EngineEntry(engineType),
	}
	e.collector = collector.New(e.runBatch)
	for _, opt := range opts {
		opt(e)
	}
	if observable, ok := pool.(queryObservable); ok {
		observable.OnQueryEnded().Attach(e.logQuery, e)
	}
	return e
}

func (e *Engine) Execute(ctx context.Context, req promise.Request) deferred.Deferred[any] {
	switch tx := req.Transaction.(type) {
	case nil:
		d := deferred.New[any]()
		go func() {
			var value any
			err := e.pool.Session(ctx, func(s session.Session) error {
				var err error
				value, err = e.run(s, req.Spec)
				return err
			})
			settle(d, value, err)
		}()
		return d
	case transaction.Batch:
		return e.collector.Add(ctx, req)
	case transaction.Interactive:
		itx, found := e.sessions.Load(tx.ID)
		if !found {
			return deferred.Rejected[any](engine.ErrTransactionClosed)
		}
		return itx.enqueue(req.Spec)
	default:
		return deferred.Rejected[any](fmt.Errorf("%w: %T", transaction.ErrMalformedTransaction, req.Transaction))
	}
}

// runBatch runs every request of a batch in one transaction. The first
// failing request rolls the whole batch back.
func (e *Engine) runBatch(ctx context.Context, level transaction.IsolationLevel, requests []promise.Request) ([]any, error) {
	values := make([]any, len(requests))
	err := e.pool.Session(ctx, func(s session.Session) error {
		db, ok := s.(session.DbSession)
		if !ok {
			return fmt.Errorf("%w: %T is not a database session", engine.ErrUnsupportedAction, s)
		}
		return db.AtomicWith(session.TxOptions{IsolationLevel: level}, func(tx session.Session) error {
			for i, req := range requests {
				value, err := e.run(tx, req.Spec)
				if err != nil {
					return &engine.BatchError{Index: i, Cause: err}
				}
				values[i] = value
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (e *Engine) statement(spec operation.Spec) (Statement, error) {
	if err := spec.Validate(); err != nil {
		return Statement{}, err
	}
	if spec.Action.IsRaw() {
		if spec.Action == operation.RunCommandRaw {
			return Statement{}, fmt.Errorf("%w: %s", engine.ErrUnsupportedAction, spec.Action)
		}
		return rawStatement(spec)
	}
	if e.compiler == nil {
		return Statement{}, fmt.Errorf("%w: %s needs a compiler", engine.ErrUnsupportedAction, spec)
	}
	return e.compiler.Compile(spec)
}

func (e *Engine) run(s session.Session, spec operation.Spec) (any, error) {
	stmt, err := e.statement(spec)
	if err != nil {
		return nil, err
	}
	conn := session.ExtractConnection(s)

	switch stmt.Result {
	case ResultCount:
		res, err := conn.Exec(stmt.Query, stmt.Params...)
		if err != nil {
			return nil, err
		}
		return res.RowsAffected()
	case ResultRows:
		return queryRows(conn, stmt)
	case ResultRow:
		rows, err := queryRows(conn, stmt)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			if spec.Action == operation.FindUniqueOrThrow || spec.Action == operation.FindFirstOrThrow {
				return nil, engine.ErrRecordNotFound
			}
			return map[string]any(nil), nil
		}
		return rows[0], nil
	default:
		panic("unreachable")
	}
}

func queryRows(conn session.DbConnection, stmt Statement) (result []map[string]any, err error) {
	rows, err := conn.Query(stmt.Query, stmt.Params...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); err == nil {
			err = closeErr
		}
	}()

	columns := rows.Columns()
	result = []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if i < len(values) {
				record[column] = values[i]
			}
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

func (e *Engine) logQuery(event session.QueryEndedEvent) error {
	entry := e.log.WithFields(logging.Fields{
		"query":    event.Query,
		"duration": event.ResponseTime,
	})
	if event.Err != nil {
		entry.WithError(event.Err).Debug("query failed")
		return nil
	}
	entry.Trace("query executed")
	return nil
}

func settle(d *deferred.DeferredImp[any], value any, err error) {
	if err != nil {
		d.Reject(err)
		return
	}
	d.Resolve(value)
}
