package pg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

var errRollback = errors.New("pg: rollback requested")

type job struct {
	spec   operation.Spec
	result *deferred.DeferredImp[any]
}

// interactiveSession keeps a database transaction open on its own goroutine
// and runs queued operations in the order they were issued.
type interactiveSession struct {
	id       string
	mu       sync.Mutex
	queue    []job
	closed   bool
	wake     chan struct{}
	decision chan bool
	done     chan struct{}
	err      error
}

func newInteractiveSession() *interactiveSession {
	return &interactiveSession{
		id:       ulid.Make().String(),
		wake:     make(chan struct{}, 1),
		decision: make(chan bool, 1),
		done:     make(chan struct{}),
	}
}

func (s *interactiveSession) enqueue(spec operation.Spec) deferred.Deferred[any] {
	d := deferred.New[any]()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		d.Reject(engine.ErrTransactionClosed)
		return d
	}
	s.queue = append(s.queue, job{spec: spec, result: d})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return d
}

func (s *interactiveSession) drain() []job {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queue
	s.queue = nil
	return queue
}

// close refuses further operations and returns the ones still queued.
func (s *interactiveSession) close() []job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	queue := s.queue
	s.queue = nil
	return queue
}

func (s *interactiveSession) serve(tx session.Session, run func(session.Session, operation.Spec) (any, error), timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	runJobs := func(jobs []job) {
		for _, j := range jobs {
			value, err := run(tx, j.spec)
			// continuations must not block the transaction goroutine
			go settle(j.result, value, err)
		}
	}

	// end runs what is still queued on commit and rejects it on rollback.
	end := func(commit bool) error {
		jobs := s.close()
		if commit {
			runJobs(jobs)
			return nil
		}
		for _, j := range jobs {
			go j.result.Reject(engine.ErrTransactionClosed)
		}
		return errRollback
	}

	for {
		// a decision made while a job ran wins over the jobs queued after it
		select {
		case commit := <-s.decision:
			return end(commit)
		default:
		}
		runJobs(s.drain())
		select {
		case <-s.wake:
		case commit := <-s.decision:
			return end(commit)
		case <-timer.C:
			for _, j := range s.close() {
				go j.result.Reject(engine.ErrTransactionExpired)
			}
			return engine.ErrTransactionExpired
		}
	}
}

func (s *interactiveSession) finish(err error) {
	s.close()
	s.err = err
	close(s.done)
}

// StartTransaction opens an interactive transaction. The session must be
// obtained within opts.MaxWait; the transaction is rolled back after
// opts.Timeout unless committed or rolled back earlier.
func (e *Engine) StartTransaction(ctx context.Context, opts transaction.InteractiveOptions) (transaction.Interactive, error) {
	opts = opts.WithDefaults()
	if !opts.IsolationLevel.IsValid() {
		return transaction.Interactive{}, fmt.Errorf("%w: %q", transaction.ErrUnknownIsolation, string(opts.IsolationLevel))
	}

	itx := newInteractiveSession()
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ready := make(chan struct{})

	go func() {
		defer cancel()
		err := e.pool.Session(sessCtx, func(s session.Session) error {
			db, ok := s.(session.DbSession)
			if !ok {
				return fmt.Errorf("%w: %T is not a database session", engine.ErrUnsupportedAction, s)
			}
			return db.AtomicWith(session.TxOptions{IsolationLevel: opts.IsolationLevel}, func(tx session.Session) error {
				close(ready)
				return itx.serve(tx, e.run, opts.Timeout)
			})
		})
		e.sessions.Delete(itx.id)
		itx.finish(err)
		if err != nil && err != errRollback {
			e.log.WithField(logging.TxIDFieldKey, itx.id).WithError(err).Debug("interactive transaction ended")
		}
	}()

	timer := time.NewTimer(opts.MaxWait)
	defer timer.Stop()

	select {
	case <-ready:
		e.sessions.Store(itx.id, itx)
		e.log.WithField(logging.TxIDFieldKey, itx.id).Debug("interactive transaction started")
		return transaction.Interactive{ID: itx.id}, nil
	case <-itx.done:
		return transaction.Interactive{}, fmt.Errorf("%w: %v", engine.ErrTransactionStart, itx.err)
	case <-timer.C:
	case <-ctx.Done():
	}
	itx.decision <- false
	cancel()
	return transaction.Interactive{}, fmt.Errorf("%w after %s", engine.ErrTransactionStart, opts.MaxWait)
}

func (e *Engine) CommitTransaction(ctx context.Context, tx transaction.Interactive) error {
	return e.endTransaction(ctx, tx, true)
}

func (e *Engine) RollbackTransaction(ctx context.Context, tx transaction.Interactive) error {
	return e.endTransaction(ctx, tx, false)
}

func (e *Engine) endTransaction(ctx context.Context, tx transaction.Interactive, commit bool) error {
	itx, found := e.sessions.LoadAndDelete(tx.ID)
	if !found {
		return engine.ErrTransactionClosed
	}
	select {
	case itx.decision <- commit:
	default:
	}
	select {
	case <-itx.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !commit && itx.err == errRollback {
		return nil
	}
	return itx.err
}
