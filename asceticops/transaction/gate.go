package transaction

import (
	"context"
	"fmt"
	"sync"
)

// Gate holds back every slot of a batch until the coordinator opens it, then
// hands out turns in position order. It is opened or aborted once, by the
// coordinator that created it.
type Gate struct {
	size       int
	latch      bool
	mu         sync.Mutex
	registered map[int]struct{}
	isOpen     bool
	opened     chan struct{}
	abortErr   error
	aborted    chan struct{}
	next       int
	turns      []chan struct{}
}

// NewGate creates a gate for a batch of size slots that opens on Open.
func NewGate(size int) *Gate {
	if size < 0 {
		size = 0
	}
	g := &Gate{
		size:       size,
		registered: make(map[int]struct{}, size),
		opened:     make(chan struct{}),
		aborted:    make(chan struct{}),
		turns:      make([]chan struct{}, size),
	}
	for i := range g.turns {
		g.turns[i] = make(chan struct{})
	}
	return g
}

// NewLatchGate creates a gate that opens by itself once all size positions
// have been registered.
func NewLatchGate(size int) *Gate {
	g := NewGate(size)
	g.latch = true
	return g
}

func (g *Gate) Size() int {
	return g.size
}

// Register records that the slot at index joined the batch.
func (g *Gate) Register(index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isOpen || g.abortErr != nil {
		return ErrGateSettled
	}
	if index < 0 || index >= g.size {
		return fmt.Errorf("%w: position %d of %d", ErrPositionOutOfRange, index, g.size)
	}
	if _, found := g.registered[index]; found {
		return fmt.Errorf("%w: position %d", ErrDuplicatePosition, index)
	}
	g.registered[index] = struct{}{}
	if g.latch && len(g.registered) == g.size {
		g.openLocked()
	}
	return nil
}

// Open releases the batch. Every position must be registered.
func (g *Gate) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isOpen || g.abortErr != nil {
		return ErrGateSettled
	}
	if len(g.registered) < g.size {
		return fmt.Errorf("%w: %d of %d registered", ErrIncompleteBatch, len(g.registered), g.size)
	}
	g.openLocked()
	return nil
}

func (g *Gate) openLocked() {
	g.isOpen = true
	close(g.opened)
	if g.size > 0 {
		close(g.turns[0])
	}
}

// Abort rejects every slot that has not acquired its turn yet. It may be
// called before or after Open, and only the first call has an effect.
func (g *Gate) Abort(cause error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.abortErr != nil {
		return ErrGateSettled
	}
	g.abortErr = &AbortError{Cause: cause}
	close(g.aborted)
	return nil
}

// Acquire blocks until it is the turn of the slot at index. A cancelled ctx
// aborts the whole batch since the slots after index could never run.
func (g *Gate) Acquire(ctx context.Context, index int) error {
	if index < 0 || index >= g.size {
		return fmt.Errorf("%w: position %d of %d", ErrPositionOutOfRange, index, g.size)
	}
	select {
	case <-g.turns[index]:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.abortErr
	case <-g.aborted:
		return g.Err()
	case <-ctx.Done():
		_ = g.Abort(ctx.Err())
		return g.Err()
	}
}

// Release passes the turn from index to index+1.
func (g *Gate) Release(index int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if index != g.next {
		return
	}
	g.next++
	if g.next < g.size {
		close(g.turns[g.next])
	}
}

// Wait blocks until the gate is opened or aborted.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.opened:
		return nil
	case <-g.aborted:
		return g.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isOpen
}

// Err returns the abort error, or nil while the gate is not aborted.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.abortErr
}

func (g *Gate) Aborted() <-chan struct{} {
	return g.aborted
}
