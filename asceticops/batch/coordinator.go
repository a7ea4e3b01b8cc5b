package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

type Options struct {
	IsolationLevel transaction.IsolationLevel
	// StandaloneFallback runs a batch with non-batchable operations one by
	// one instead of refusing it.
	StandaloneFallback bool
}

type RunOption func(*Options)

func WithIsolationLevel(level transaction.IsolationLevel) RunOption {
	return func(o *Options) {
		o.IsolationLevel = level
	}
}

func WithStandaloneFallback(enabled bool) RunOption {
	return func(o *Options) {
		o.StandaloneFallback = enabled
	}
}

// Coordinator runs lists of operations as sequential batches. Every batch
// gets its own gate and an id unique to the coordinator.
type Coordinator struct {
	lastID   atomic.Int64
	defaults Options
	log      *logrus.Entry
}

func NewCoordinator(defaults Options) *Coordinator {
	return &Coordinator{
		defaults: defaults,
		log:      logging.WithFields(logging.Fields{"component": "batch"}),
	}
}

// Run executes ops as one batch and returns their results in position order.
// When a slot fails the remaining slots are aborted and the root error of
// the batch is returned.
func (c *Coordinator) Run(ctx context.Context, ops []promise.Operation, opts ...RunOption) ([]any, error) {
	o := c.defaults
	for _, opt := range opts {
		opt(&o)
	}
	if !o.IsolationLevel.IsValid() {
		return nil, fmt.Errorf("%w: %q", transaction.ErrUnknownIsolation, string(o.IsolationLevel))
	}
	if len(ops) == 0 {
		return []any{}, nil
	}

	batchables := make([]promise.Batchable, len(ops))
	for i, op := range ops {
		b, ok := op.(promise.Batchable)
		if !ok {
			if o.StandaloneFallback {
				return c.runStandalone(ctx, ops)
			}
			return nil, fmt.Errorf("%w: position %d (%s)", ErrNotBatchable, i, op.Spec())
		}
		batchables[i] = b
	}

	id := c.lastID.Add(1)
	gate := transaction.NewGate(len(ops))
	log := c.log.WithFields(logging.Fields{
		logging.TxIDFieldKey:           id,
		"size":                         len(ops),
		logging.IsolationLevelFieldKey: o.IsolationLevel.String(),
	})

	results := make([]deferred.Deferred[any], len(ops))
	for i, b := range batchables {
		d, err := b.RequestTransaction(transaction.Batch{
			ID:             id,
			Index:          i,
			IsolationLevel: o.IsolationLevel,
			Lock:           gate,
		})
		if err != nil {
			_ = gate.Abort(err)
			log.WithError(err).WithField(logging.TxIndexFieldKey, i).Warn("batch refused")
			return nil, err
		}
		results[i] = d
	}
	if err := gate.Open(); err != nil {
		return nil, err
	}
	log.Debug("batch opened")

	values, err := c.wait(ctx, results, gate)
	if err != nil {
		log.WithError(err).Debug("batch failed")
		return nil, err
	}
	return values, nil
}

type outcome struct {
	index int
	value any
	err   error
}

// wait collects every settlement. The first failure aborts the slots that
// have not been submitted yet.
func (c *Coordinator) wait(ctx context.Context, results []deferred.Deferred[any], gate *transaction.Gate) ([]any, error) {
	outcomes := make(chan outcome, len(results))
	for i, d := range results {
		go func(i int, d deferred.Deferred[any]) {
			v, err := d.Await(context.Background())
			outcomes <- outcome{index: i, value: v, err: err}
		}(i, d)
	}

	values := make([]any, len(results))
	errs := make([]error, len(results))
	failed := false
	for received := 0; received < len(results); received++ {
		select {
		case o := <-outcomes:
			values[o.index], errs[o.index] = o.value, o.err
			if o.err != nil && !failed {
				failed = true
				_ = gate.Abort(o.err)
			}
		case <-ctx.Done():
			_ = gate.Abort(ctx.Err())
			return nil, ctx.Err()
		}
	}
	if failed {
		return nil, RootError(errs)
	}
	return values, nil
}

func (c *Coordinator) runStandalone(ctx context.Context, ops []promise.Operation) ([]any, error) {
	c.log.WithField("size", len(ops)).Debug("running batch standalone")
	values := make([]any, len(ops))
	for i, op := range ops {
		d, err := op.Dispatch(nil)
		if err != nil {
			return nil, err
		}
		if values[i], err = d.Await(ctx); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// RootError picks the error a failed batch reports, given the errors of its
// slots by position. An error that names its own slot as the failing one
// wins; otherwise the first error that is not an abort, then the first error.
func RootError(errs []error) error {
	for i, err := range errs {
		var indexed promise.BatchIndexed
		if err != nil && errors.As(err, &indexed) && indexed.BatchIndex() == i {
			return err
		}
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, transaction.ErrBatchAborted) {
			return err
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
