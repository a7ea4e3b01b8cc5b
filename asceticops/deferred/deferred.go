package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

/**
* Simplified version of
* - https://github.com/emacsway/store/blob/devel/polyfill.js#L199
* - https://github.com/emacsway/go-promise
*
* See also:
* - https://promisesaplus.com/
* - http://promises-aplus.github.io/promises-spec/
**/

var (
	ErrUnexpectedType = errors.New("deferred: unexpected settlement type")
	ErrNilRejection   = errors.New("deferred: rejected with nil error")
)

func Noop[T, R any](_ T) (R, error) {
	var zero R
	return zero, nil
}

// propagated marks an error that is forwarded to the next deferred
// without being recorded as a handler failure.
type propagated struct {
	err error
}

func (p *propagated) Error() string {
	return p.err.Error()
}

type nextDeferred interface {
	resolveAny(any)
	rejectAny(error)
	OccurredErr() error
}

type handler[T any] struct {
	onSuccess func(T) (any, error)
	onError   func(error) (any, error)
	next      nextDeferred
}

// DeferredImp settles exactly once. The zero value is a pending deferred.
type DeferredImp[T any] struct {
	mu          sync.Mutex
	value       T
	err         error
	occurredErr error
	isSettled   bool
	isRejected  bool
	done        chan struct{}
	handlers    []handler[T]
}

func New[T any]() *DeferredImp[T] {
	return &DeferredImp[T]{done: make(chan struct{})}
}

func Resolved[T any](value T) *DeferredImp[T] {
	d := New[T]()
	d.Resolve(value)
	return d
}

func Rejected[T any](err error) *DeferredImp[T] {
	d := New[T]()
	d.Reject(err)
	return d
}

func (d *DeferredImp[T]) resolveAny(v any) {
	if v == nil {
		var zero T
		d.Resolve(zero)
		return
	}
	t, ok := v.(T)
	if !ok {
		d.Reject(fmt.Errorf("%w: %T", ErrUnexpectedType, v))
		return
	}
	d.Resolve(t)
}

func (d *DeferredImp[T]) rejectAny(err error) {
	d.Reject(err)
}

// Resolve fulfills the deferred. Calls after the first settlement are ignored.
func (d *DeferredImp[T]) Resolve(value T) {
	handlers, ok := d.settle(value, nil, false)
	if !ok {
		return
	}
	for _, h := range handlers {
		d.resolveHandler(h)
	}
}

// Reject rejects the deferred. Calls after the first settlement are ignored.
func (d *DeferredImp[T]) Reject(err error) {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	handlers, ok := d.settle(zero, err, true)
	if !ok {
		return
	}
	for _, h := range handlers {
		d.rejectHandler(h)
	}
}

func (d *DeferredImp[T]) settle(value T, err error, rejected bool) ([]handler[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isSettled {
		return nil, false
	}
	d.value = value
	d.err = err
	d.isRejected = rejected
	d.isSettled = true
	close(d.doneLocked())
	return d.handlers, true
}

func (d *DeferredImp[T]) doneLocked() chan struct{} {
	if d.done == nil {
		d.done = make(chan struct{})
	}
	return d.done
}

func (d *DeferredImp[T]) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doneLocked()
}

func (d *DeferredImp[T]) IsSettled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isSettled
}

// Await blocks until the deferred settles or ctx is done.
func (d *DeferredImp[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.Done():
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err
}

func (d *DeferredImp[T]) addHandler(h handler[T]) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	settled, rejected := d.isSettled, d.isRejected
	d.mu.Unlock()

	if !settled {
		return
	}
	if rejected {
		d.rejectHandler(h)
	} else {
		d.resolveHandler(h)
	}
}

// Then registers callbacks for success and error cases. A nil onSuccess passes
// the value through, a nil onError propagates the error.
func (d *DeferredImp[T]) Then(onSuccess func(T) (any, error), onError func(error) (any, error)) Deferred[any] {
	next := New[any]()
	d.addHandler(handler[T]{
		onSuccess: onSuccess,
		onError:   onError,
		next:      next,
	})
	return next
}

func (d *DeferredImp[T]) Catch(onError func(error) (any, error)) Deferred[any] {
	return d.Then(nil, onError)
}

// Finally runs onFinally on either outcome. The returned deferred settles like
// this one unless onFinally fails, in which case it is rejected with that error.
func (d *DeferredImp[T]) Finally(onFinally func() error) Deferred[T] {
	next := New[T]()
	d.addHandler(handler[T]{
		onSuccess: func(v T) (any, error) {
			if err := onFinally(); err != nil {
				return nil, err
			}
			return v, nil
		},
		onError: func(err error) (any, error) {
			if finallyErr := onFinally(); finallyErr != nil {
				return nil, finallyErr
			}
			return nil, &propagated{err}
		},
		next: next,
	})
	return next
}

// Then registers typed callbacks for success and error cases.
//
// Per Promises/A+ 2.2.7:
//   - If onSuccess returns a value, next deferred is resolved with it.
//   - If onSuccess returns an error, next deferred is rejected with it.
//   - If onError returns a value, next deferred is resolved with it (recovery).
//   - If onError returns an error, next deferred is rejected with it.
//
// This is a free function (not a method) because Go does not support
// type parameters on methods. This allows R to be a concrete type,
// preserving type safety through the chain.
func Then[T, R any](d *DeferredImp[T], onSuccess func(T) (R, error), onError func(error) (R, error)) *DeferredImp[R] {
	next := New[R]()
	h := handler[T]{next: next}
	if onSuccess != nil {
		h.onSuccess = func(v T) (any, error) { return onSuccess(v) }
	}
	if onError != nil {
		h.onError = func(err error) (any, error) { return onError(err) }
	}
	d.addHandler(h)
	return next
}

// Cast adapts an untyped thenable to T. A value of another type rejects the
// result with ErrUnexpectedType.
func Cast[T any](src Thenable[any]) *DeferredImp[T] {
	next := New[T]()
	Forward(src, next)
	return next
}

// Forward settles dst with the outcome of src. The error is passed on as is.
func Forward[T any](src Thenable[any], dst *DeferredImp[T]) {
	src.Then(func(v any) (any, error) {
		dst.resolveAny(v)
		return nil, nil
	}, func(err error) (any, error) {
		dst.Reject(err)
		return nil, nil
	})
}

func (d *DeferredImp[T]) resolveHandler(h handler[T]) {
	if h.onSuccess == nil {
		h.next.resolveAny(d.value)
		return
	}
	result, err := h.onSuccess(d.value)
	d.forward(h, result, err)
}

func (d *DeferredImp[T]) rejectHandler(h handler[T]) {
	if h.onError == nil {
		h.next.rejectAny(d.err)
		return
	}
	result, err := h.onError(d.err)
	d.forward(h, result, err)
}

func (d *DeferredImp[T]) forward(h handler[T], result any, err error) {
	if err == nil {
		h.next.resolveAny(result)
		return
	}
	var p *propagated
	if errors.As(err, &p) {
		h.next.rejectAny(p.err)
		return
	}
	d.mu.Lock()
	d.occurredErr = multierror.Append(d.occurredErr, err)
	d.mu.Unlock()
	h.next.rejectAny(err)
}

func (d *DeferredImp[T]) OccurredErr() error {
	d.mu.Lock()
	err := d.occurredErr
	handlers := d.handlers
	d.mu.Unlock()
	for _, h := range handlers {
		nestedErr := h.next.OccurredErr()
		if nestedErr != nil {
			err = multierror.Append(err, nestedErr)
		}
	}
	return err
}

func All[T any](deferreds []Thenable[T]) *DeferredImp[[]T] {
	result := New[[]T]()

	if len(deferreds) == 0 {
		result.Resolve([]T{})
		return result
	}

	var mu sync.Mutex
	count := len(deferreds)
	values := make([]T, count)
	resolvedCount := 0

	for i, d := range deferreds {
		idx := i
		d.Then(func(value T) (any, error) {
			mu.Lock()
			values[idx] = value
			resolvedCount++
			complete := resolvedCount == count
			mu.Unlock()
			if complete {
				result.Resolve(values)
			}
			return nil, nil
		}, func(err error) (any, error) {
			result.Reject(err)
			return nil, nil
		})
	}

	return result
}
