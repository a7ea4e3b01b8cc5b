package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

type EngineHandler func(req promise.Request) (any, error)

// NewEngineStub records every request. A nil handler resolves every request
// with nil.
func NewEngineStub(handler EngineHandler) *EngineStub {
	return &EngineStub{handler: handler}
}

type EngineStub struct {
	mu       sync.Mutex
	handler  EngineHandler
	requests []promise.Request
}

func (e *EngineStub) Execute(ctx context.Context, req promise.Request) deferred.Deferred[any] {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	handler := e.handler
	e.mu.Unlock()

	if handler == nil {
		return deferred.Resolved[any](nil)
	}
	value, err := handler(req)
	if err != nil {
		return deferred.Rejected[any](err)
	}
	return deferred.Resolved[any](value)
}

func (e *EngineStub) Requests() []promise.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]promise.Request(nil), e.requests...)
}

// InteractiveEngineStub adds interactive transaction support to EngineStub.
// Started transactions are numbered itx-1, itx-2 and so on.
type InteractiveEngineStub struct {
	*EngineStub
	StartErr  error
	CommitErr error

	mu         sync.Mutex
	started    []transaction.InteractiveOptions
	committed  []string
	rolledBack []string
}

func NewInteractiveEngineStub(handler EngineHandler) *InteractiveEngineStub {
	return &InteractiveEngineStub{EngineStub: NewEngineStub(handler)}
}

func (e *InteractiveEngineStub) StartTransaction(ctx context.Context, opts transaction.InteractiveOptions) (transaction.Interactive, error) {
	if e.StartErr != nil {
		return transaction.Interactive{}, e.StartErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, opts)
	return transaction.Interactive{ID: fmt.Sprintf("itx-%d", len(e.started))}, nil
}

func (e *InteractiveEngineStub) CommitTransaction(ctx context.Context, tx transaction.Interactive) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committed = append(e.committed, tx.ID)
	return e.CommitErr
}

func (e *InteractiveEngineStub) RollbackTransaction(ctx context.Context, tx transaction.Interactive) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolledBack = append(e.rolledBack, tx.ID)
	return nil
}

func (e *InteractiveEngineStub) Started() []transaction.InteractiveOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]transaction.InteractiveOptions(nil), e.started...)
}

func (e *InteractiveEngineStub) Committed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.committed...)
}

func (e *InteractiveEngineStub) RolledBack() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.rolledBack...)
}
