package client

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/batch"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/operation"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

var (
	ErrInteractiveUnsupported = errors.New("client: engine does not support interactive transactions")
	ErrNestedTransaction      = errors.New("client: nested interactive transactions are not supported")
)

type Options struct {
	// IsolationLevel is the default isolation level of batches.
	IsolationLevel transaction.IsolationLevel
	// StandaloneFallback lets Batch run non-batchable operations one by one.
	StandaloneFallback bool
	Interactive        transaction.InteractiveOptions
}

// Client creates deferred operations for one engine. Inside Transaction the
// callback receives a client bound to the interactive transaction.
type Client struct {
	engine      promise.Engine
	factory     *promise.Factory
	coordinator *batch.Coordinator
	opts        Options
	tx          *transaction.Interactive
	log         *logrus.Entry
}

func New(e promise.Engine, opts Options) *Client {
	factory, _ := promise.NewFactory(e, nil)
	return &Client{
		engine:  e,
		factory: factory,
		coordinator: batch.NewCoordinator(batch.Options{
			IsolationLevel:     opts.IsolationLevel,
			StandaloneFallback: opts.StandaloneFallback,
		}),
		opts: opts,
		log:  logging.WithFields(logging.Fields{"component": "client"}),
	}
}

func (c *Client) Engine() promise.Engine {
	return c.engine
}

// InTransaction returns the interactive transaction the client is bound to.
func (c *Client) InTransaction() (transaction.Interactive, bool) {
	if c.tx == nil {
		return transaction.Interactive{}, false
	}
	return *c.tx, true
}

// Op creates a deferred operation on model. Nothing runs before the result
// is awaited or the operation joins a batch.
func Op[T any](ctx context.Context, c *Client, model string, action operation.Action, args any) promise.OperationPromise[T] {
	return promise.Make[T](ctx, c.factory, operation.NewSpec(model, action, args))
}

// ExecuteRaw creates a deferred raw statement that settles with the number
// of affected rows.
func (c *Client) ExecuteRaw(ctx context.Context, query string, params ...any) promise.OperationPromise[int64] {
	return promise.Make[int64](ctx, c.factory, operation.NewRawSpec(operation.ExecuteRaw, query, params...))
}

// QueryRaw creates a deferred raw query that settles with the returned rows.
func (c *Client) QueryRaw(ctx context.Context, query string, params ...any) promise.OperationPromise[[]map[string]any] {
	return promise.Make[[]map[string]any](ctx, c.factory, operation.NewRawSpec(operation.QueryRaw, query, params...))
}

// Batch runs ops as one sequential batch. Inside an interactive transaction
// the operations run one by one in the transaction.
func (c *Client) Batch(ctx context.Context, ops []promise.Operation, opts ...batch.RunOption) ([]any, error) {
	return c.coordinator.Run(ctx, ops, opts...)
}

type TransactionOption func(*transaction.InteractiveOptions)

func WithMaxWait(d time.Duration) TransactionOption {
	return func(o *transaction.InteractiveOptions) {
		o.MaxWait = d
	}
}

func WithTimeout(d time.Duration) TransactionOption {
	return func(o *transaction.InteractiveOptions) {
		o.Timeout = d
	}
}

func WithTransactionIsolation(level transaction.IsolationLevel) TransactionOption {
	return func(o *transaction.InteractiveOptions) {
		o.IsolationLevel = level
	}
}

// Transaction opens an interactive transaction and calls fn with a client
// bound to it. The transaction commits when fn returns nil and rolls back
// otherwise; fn's error is returned as is.
func (c *Client) Transaction(ctx context.Context, fn func(tx *Client) error, opts ...TransactionOption) error {
	if c.tx != nil {
		return ErrNestedTransaction
	}
	tm, ok := c.engine.(engine.TransactionManager)
	if !ok {
		return ErrInteractiveUnsupported
	}
	o := c.opts.Interactive
	for _, opt := range opts {
		opt(&o)
	}

	itx, err := tm.StartTransaction(ctx, o.WithDefaults())
	if err != nil {
		return err
	}
	log := logging.TransactionEntry(c.log, itx)
	log.Debug("transaction started")

	txClient, err := c.bind(itx)
	if err != nil {
		_ = tm.RollbackTransaction(ctx, itx)
		return err
	}

	err = fn(txClient)

	if err != nil {
		if txErr := tm.RollbackTransaction(ctx, itx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		log.WithError(err).Debug("transaction rolled back")
		return err
	}

	if err := tm.CommitTransaction(ctx, itx); err != nil {
		return err
	}
	log.Debug("transaction committed")
	return nil
}

func (c *Client) bind(itx transaction.Interactive) (*Client, error) {
	factory, err := promise.NewFactory(c.engine, itx)
	if err != nil {
		return nil, err
	}
	return &Client{
		engine:  c.engine,
		factory: factory,
		coordinator: batch.NewCoordinator(batch.Options{
			IsolationLevel:     c.opts.IsolationLevel,
			StandaloneFallback: true,
		}),
		opts: c.opts,
		tx:   &itx,
		log:  c.log,
	}, nil
}
