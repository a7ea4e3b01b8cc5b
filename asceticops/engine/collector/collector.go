package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/deferred"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

// Runner executes a complete batch in position order. It returns one result
// per request, or an error that fails the whole batch.
type Runner func(ctx context.Context, level transaction.IsolationLevel, requests []promise.Request) ([]any, error)

// Collector holds batch requests back until every slot of their gate has been
// submitted, then runs them as one unit.
type Collector struct {
	run     Runner
	batches *xsync.MapOf[*transaction.Gate, *pendingBatch]
}

func New(run Runner) *Collector {
	return &Collector{
		run:     run,
		batches: xsync.NewMapOf[*transaction.Gate, *pendingBatch](),
	}
}

// Add collects req, whose transaction must be a batch slot. The last slot of
// a batch triggers the run.
func (c *Collector) Add(ctx context.Context, req promise.Request) deferred.Deferred[any] {
	slot, ok := req.Transaction.(transaction.Batch)
	if !ok {
		return deferred.Rejected[any](fmt.Errorf("%w: %T is not a batch slot", transaction.ErrMalformedTransaction, req.Transaction))
	}
	if err := slot.Validate(); err != nil {
		return deferred.Rejected[any](err)
	}

	batch, loaded := c.batches.LoadOrCompute(slot.Lock, func() *pendingBatch {
		return newPendingBatch(slot)
	})
	if !loaded {
		go c.watchAbort(slot.Lock, batch)
	}

	d := deferred.New[any]()
	complete, err := batch.add(slot.Index, req, d)
	if err != nil {
		d.Reject(err)
		return d
	}
	if complete {
		c.batches.Delete(slot.Lock)
		go c.flush(ctx, batch)
	}
	return d
}

// Pending reports the number of batches still collecting.
func (c *Collector) Pending() int {
	return c.batches.Size()
}

func (c *Collector) flush(ctx context.Context, batch *pendingBatch) {
	requests, results := batch.snapshot()
	log := logging.WithFields(logging.Fields{
		logging.TxIDFieldKey:           batch.id,
		logging.IsolationLevelFieldKey: batch.level.String(),
	})
	log.WithField("size", len(requests)).Debug("running batch")

	values, err := c.run(ctx, batch.level, requests)
	if err == nil && len(values) != len(requests) {
		err = fmt.Errorf("batch runner returned %d results for %d requests", len(values), len(requests))
	}
	if err != nil {
		log.WithError(err).Warn("batch failed")
		for _, d := range results {
			d.Reject(err)
		}
		return
	}
	for i, d := range results {
		d.Resolve(values[i])
	}
}

// watchAbort rejects collected slots of a batch that will never complete.
func (c *Collector) watchAbort(gate *transaction.Gate, batch *pendingBatch) {
	select {
	case <-gate.Aborted():
	case <-batch.flushed:
		return
	}
	if !batch.abandon() {
		return
	}
	c.batches.Delete(gate)
	err := gate.Err()
	_, results := batch.snapshot()
	for _, d := range results {
		if d != nil {
			d.Reject(err)
		}
	}
}

type pendingBatch struct {
	id      int64
	level   transaction.IsolationLevel
	mu      sync.Mutex
	reqs    []promise.Request
	results []*deferred.DeferredImp[any]
	count   int
	done    bool
	flushed chan struct{}
}

func newPendingBatch(slot transaction.Batch) *pendingBatch {
	size := slot.Lock.Size()
	return &pendingBatch{
		id:      slot.ID,
		level:   slot.IsolationLevel,
		reqs:    make([]promise.Request, size),
		results: make([]*deferred.DeferredImp[any], size),
		flushed: make(chan struct{}),
	}
}

func (b *pendingBatch) add(index int, req promise.Request, d *deferred.DeferredImp[any]) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return false, transaction.ErrGateSettled
	}
	if b.results[index] != nil {
		return false, fmt.Errorf("%w: position %d", transaction.ErrDuplicatePosition, index)
	}
	b.reqs[index] = req
	b.results[index] = d
	b.count++
	if b.count == len(b.results) {
		b.done = true
		close(b.flushed)
		return true, nil
	}
	return false, nil
}

// abandon marks an incomplete batch as done. It reports false when the
// batch was already complete.
func (b *pendingBatch) abandon() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return false
	}
	b.done = true
	return true
}

func (b *pendingBatch) snapshot() ([]promise.Request, []*deferred.DeferredImp[any]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reqs, b.results
}
