package pg

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session/result"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/signals"
)

type querySignals struct {
	onQueryStarted signals.Signal[session.QueryStartedEvent]
	onQueryEnded   signals.Signal[session.QueryEndedEvent]
}

func (s querySignals) OnQueryStarted() signals.Signal[session.QueryStartedEvent] {
	return s.onQueryStarted
}

func (s querySignals) OnQueryEnded() signals.Signal[session.QueryEndedEvent] {
	return s.onQueryEnded
}

// Session represents a database session without transaction
type Session struct {
	querySignals
	ctx  context.Context
	conn *pgxpool.Conn
}

func newSession(ctx context.Context, conn *pgxpool.Conn, qs querySignals) *Session {
	return &Session{
		querySignals: qs,
		ctx:          ctx,
		conn:         conn,
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.conn, session: s}
}

func (s *Session) Atomic(callback session.SessionCallback) error {
	return s.AtomicWith(session.TxOptions{}, callback)
}

func (s *Session) AtomicWith(opts session.TxOptions, callback session.SessionCallback) error {
	tx, err := s.conn.BeginTx(s.ctx, TxOptions(opts))
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}

	atomicSession := newAtomicSession(s.ctx, tx, s.querySignals)

	err = callback(atomicSession)

	if err != nil {
		if txErr := tx.Rollback(s.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := tx.Commit(s.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to commit transaction")
	}

	return nil
}

// AtomicSession represents a session inside transaction
type AtomicSession struct {
	querySignals
	ctx context.Context
	tx  pgx.Tx
}

func newAtomicSession(ctx context.Context, tx pgx.Tx, qs querySignals) *AtomicSession {
	return &AtomicSession{
		querySignals: qs,
		ctx:          ctx,
		tx:           tx,
	}
}

func (s *AtomicSession) Context() context.Context {
	return s.ctx
}

func (s *AtomicSession) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.tx, session: s}
}

func (s *AtomicSession) Atomic(callback session.SessionCallback) error {
	return s.AtomicWith(session.TxOptions{}, callback)
}

// AtomicWith opens a savepoint; the isolation level of the outer
// transaction stays in effect.
func (s *AtomicSession) AtomicWith(_ session.TxOptions, callback session.SessionCallback) error {
	nestedTx, err := s.tx.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start savepoint")
	}

	atomicSession := newAtomicSession(s.ctx, nestedTx, s.querySignals)

	err = callback(atomicSession)
	if err != nil {
		if txErr := nestedTx.Rollback(s.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := nestedTx.Commit(s.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to commit savepoint")
	}

	return nil
}

// executor interface for both *pgxpool.Conn and pgx.Tx
type executor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

type observableSession interface {
	session.DbSession
	OnQueryStarted() signals.Signal[session.QueryStartedEvent]
	OnQueryEnded() signals.Signal[session.QueryEndedEvent]
}

// connection implements session.DbConnection
type connection struct {
	ctx     context.Context
	exec    executor
	session observableSession
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	ended, err := c.started(query, args)
	if err != nil {
		return nil, err
	}
	tag, err := c.exec.Exec(c.ctx, query, args...)
	if endErr := ended(err); err == nil {
		err = endErr
	}
	if err != nil {
		return nil, err
	}
	return result.NewResult(tag.String(), tag.RowsAffected()), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	ended, err := c.started(query, args)
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.Query(c.ctx, query, args...)
	if endErr := ended(err); err == nil {
		err = endErr
	}
	if err != nil {
		if rows != nil {
			rows.Close()
		}
		return nil, err
	}
	return &rowsAdapter{rows: rows}, nil
}

func (c *connection) started(query string, args []any) (func(error) error, error) {
	start := time.Now()
	if err := c.session.OnQueryStarted().Notify(session.QueryStartedEvent{
		Query:   query,
		Params:  args,
		Sender:  c,
		Session: c.session,
	}); err != nil {
		return nil, err
	}
	return func(queryErr error) error {
		return c.session.OnQueryEnded().Notify(session.QueryEndedEvent{
			Query:        query,
			Params:       args,
			Sender:       c,
			Session:      c.session,
			ResponseTime: time.Since(start),
			Err:          queryErr,
		})
	}, nil
}
