package promise

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// New creates a batchable promise that runs standalone unless a coordinator
// gives it a transaction first. Nothing is sent to the engine before the
// promise is awaited or a continuation is registered.
func New[T any](ctx context.Context, engine Engine, spec operation.Spec) *BatchablePromiseImp[T] {
	return &BatchablePromiseImp[T]{
		OperationPromiseImp: newOperationPromise[T](ctx, engine, spec, nil, true),
	}
}

// NewInTransaction creates a promise bound to an open interactive
// transaction. Such promises cannot join a batch.
func NewInTransaction[T any](ctx context.Context, engine Engine, spec operation.Spec, tx transaction.Interactive) *OperationPromiseImp[T] {
	return newOperationPromise[T](ctx, engine, spec, tx, false)
}

func newOperationPromise[T any](ctx context.Context, engine Engine, spec operation.Spec, defaultTx transaction.Transaction, batchable bool) *OperationPromiseImp[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &OperationPromiseImp[T]{
		ctx:       ctx,
		engine:    engine,
		spec:      spec,
		defaultTx: defaultTx,
		batchable: batchable,
		done:      make(chan struct{}),
	}
}

// OperationPromiseImp dispatches its operation at most once. The first
// dispatch decides the transaction context, later registrations share its
// settlement.
type OperationPromiseImp[T any] struct {
	ctx       context.Context
	engine    Engine
	spec      operation.Spec
	defaultTx transaction.Transaction
	batchable bool

	mu             sync.Mutex
	result         *deferred.DeferredImp[T]
	dispatchedIn   transaction.Transaction
	batchRequested bool
	done           chan struct{}
}

func (p *OperationPromiseImp[T]) Spec() operation.Spec {
	return p.spec
}

func (p *OperationPromiseImp[T]) Then(onSuccess func(T) (any, error), onError func(error) (any, error)) deferred.Deferred[any] {
	return p.settlement().Then(onSuccess, onError)
}

func (p *OperationPromiseImp[T]) Catch(onError func(error) (any, error)) deferred.Deferred[any] {
	return p.settlement().Catch(onError)
}

func (p *OperationPromiseImp[T]) Finally(onFinally func() error) deferred.Deferred[T] {
	return p.settlement().Finally(onFinally)
}

func (p *OperationPromiseImp[T]) Await(ctx context.Context) (T, error) {
	return p.settlement().Await(ctx)
}

// Done is closed once the operation settled. It does not start the
// operation.
func (p *OperationPromiseImp[T]) Done() <-chan struct{} {
	return p.done
}

func (p *OperationPromiseImp[T]) ThenIn(tx transaction.Transaction, onSuccess func(T) (any, error), onError func(error) (any, error)) (deferred.Deferred[any], error) {
	d, err := p.dispatch(tx)
	if err != nil {
		return nil, err
	}
	return d.Then(onSuccess, onError), nil
}

func (p *OperationPromiseImp[T]) CatchIn(tx transaction.Transaction, onError func(error) (any, error)) (deferred.Deferred[any], error) {
	d, err := p.dispatch(tx)
	if err != nil {
		return nil, err
	}
	return d.Catch(onError), nil
}

func (p *OperationPromiseImp[T]) FinallyIn(tx transaction.Transaction, onFinally func() error) (deferred.Deferred[T], error) {
	d, err := p.dispatch(tx)
	if err != nil {
		return nil, err
	}
	return d.Finally(onFinally), nil
}

// Dispatch starts the operation in tx and returns its untyped settlement.
func (p *OperationPromiseImp[T]) Dispatch(tx transaction.Transaction) (deferred.Deferred[any], error) {
	d, err := p.dispatch(tx)
	if err != nil {
		return nil, err
	}
	return d.Then(nil, nil), nil
}

// settlement dispatches in the default context. A malformed default context
// rejects the result instead of being returned, since the plain future
// surface has no error return. NewFactory refuses malformed defaults early.
func (p *OperationPromiseImp[T]) settlement() *deferred.DeferredImp[T] {
	d, err := p.dispatch(nil)
	if err != nil {
		return deferred.Rejected[T](err)
	}
	return d
}

func (p *OperationPromiseImp[T]) dispatch(tx transaction.Transaction) (*deferred.DeferredImp[T], error) {
	if tx == nil {
		tx = p.defaultTx
	}
	if tx != nil {
		if err := tx.Validate(); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch t := tx.(type) {
	case nil:
		if p.result == nil {
			p.setResult(nil, deferred.Cast[T](p.execute(nil)))
		}
		return p.result, nil
	case transaction.Interactive:
		if p.result == nil {
			p.setResult(t, deferred.Cast[T](p.execute(t)))
			return p.result, nil
		}
		if used, ok := p.dispatchedIn.(transaction.Interactive); ok && used.ID != t.ID {
			return nil, fmt.Errorf("%w: in transaction %s", ErrAlreadyDispatched, used.ID)
		}
		return p.result, nil
	case transaction.Batch:
		if !p.batchable {
			return nil, ErrNotBatchable
		}
		if p.batchRequested {
			return nil, ErrBatchAlreadyRequested
		}
		if p.result != nil {
			return nil, ErrAlreadyDispatched
		}
		if err := t.Lock.Register(t.Index); err != nil {
			return nil, err
		}
		p.batchRequested = true
		p.setResult(t, deferred.New[T]())
		go p.executeInBatch(t, p.result)
		return p.result, nil
	default:
		return nil, fmt.Errorf("%w: %T", transaction.ErrMalformedTransaction, tx)
	}
}

// setResult records the first dispatch. Callers hold p.mu.
func (p *OperationPromiseImp[T]) setResult(tx transaction.Transaction, result *deferred.DeferredImp[T]) {
	p.result = result
	p.dispatchedIn = tx
	go func() {
		<-result.Done()
		close(p.done)
	}()
}

// executeInBatch waits for the slot's turn and submits the request. The turn
// passes on as soon as the request is submitted, not when it settles.
func (p *OperationPromiseImp[T]) executeInBatch(slot transaction.Batch, result *deferred.DeferredImp[T]) {
	if err := slot.Lock.Acquire(p.ctx, slot.Index); err != nil {
		p.entry(slot).WithError(err).Debug("batch slot not dispatched")
		result.Reject(err)
		return
	}
	src := p.execute(slot)
	slot.Lock.Release(slot.Index)
	deferred.Forward(src, result)
}

func (p *OperationPromiseImp[T]) execute(tx transaction.Transaction) deferred.Deferred[any] {
	p.entry(tx).Debug("dispatching operation")
	return p.engine.Execute(p.ctx, Request{Spec: p.spec, Transaction: tx})
}

func (p *OperationPromiseImp[T]) entry(tx transaction.Transaction) *logrus.Entry {
	return logging.TransactionEntry(logging.OperationEntry(p.spec), tx)
}

type BatchablePromiseImp[T any] struct {
	*OperationPromiseImp[T]
}

// RequestTransaction runs the operation as slot of a batch. It may be called
// once; the returned deferred settles with the operation's result.
func (p *BatchablePromiseImp[T]) RequestTransaction(slot transaction.Batch) (deferred.Deferred[any], error) {
	return p.Dispatch(slot)
}
