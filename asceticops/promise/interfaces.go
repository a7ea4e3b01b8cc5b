package promise

import (
	"context"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// Request is what a promise hands to the engine. A nil Transaction means
// standalone execution.
type Request struct {
	Spec        operation.Spec
	Transaction transaction.Transaction
}

type Engine interface {
	Execute(ctx context.Context, req Request) deferred.Deferred[any]
}

type EngineFunc func(ctx context.Context, req Request) deferred.Deferred[any]

func (f EngineFunc) Execute(ctx context.Context, req Request) deferred.Deferred[any] {
	return f(ctx, req)
}

// Awaitable is the plain future surface callers use.
type Awaitable[T any] interface {
	deferred.Thenable[T]
}

// Transactable lets a coordinator choose the context the operation runs in.
// The *In variants return usage errors synchronously.
type Transactable[T any] interface {
	Spec() operation.Spec
	ThenIn(tx transaction.Transaction, onSuccess func(T) (any, error), onError func(error) (any, error)) (deferred.Deferred[any], error)
	CatchIn(tx transaction.Transaction, onError func(error) (any, error)) (deferred.Deferred[any], error)
	FinallyIn(tx transaction.Transaction, onFinally func() error) (deferred.Deferred[T], error)
}

type OperationPromise[T any] interface {
	Awaitable[T]
	Transactable[T]
	Operation
}

// Operation is the untyped view of a promise used by coordinators.
type Operation interface {
	Spec() operation.Spec
	Dispatch(tx transaction.Transaction) (deferred.Deferred[any], error)
}

// Batchable is implemented only by promises that may join a sequential batch.
type Batchable interface {
	Operation
	RequestTransaction(slot transaction.Batch) (deferred.Deferred[any], error)
}

// BatchIndexed is implemented by engine errors that know which batch slot
// caused them.
type BatchIndexed interface {
	BatchIndex() int
}
