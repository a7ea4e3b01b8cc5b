package deferred

import "context"

// Thenable is the read side of a deferred: continuation registration and awaiting.
type Thenable[T any] interface {
	Then(func(T) (any, error), func(error) (any, error)) Deferred[any]
	Catch(func(error) (any, error)) Deferred[any]
	Finally(func() error) Deferred[T]
	Await(context.Context) (T, error)
	Done() <-chan struct{}
}

type Deferred[T any] interface {
	Thenable[T]
	Resolve(T)
	Reject(error)
	OccurredErr() error
}
