package signals

import (
	"reflect"
	"sync"

	"github.com/hashicorp/go-multierror"
)

type entry[E any] struct {
	id       any
	observer Observer[E]
}

type disposableFunc func()

func (f disposableFunc) Dispose() {
	f()
}

// SignalImp is safe for concurrent use. Observers are notified in the order
// they were attached.
type SignalImp[E any] struct {
	mu        sync.RWMutex
	observers []entry[E]
}

func NewSignal[E any]() *SignalImp[E] {
	return &SignalImp[E]{}
}

// Attach is idempotent per observer ID. Without an explicit ID the function
// pointer identifies the observer.
func (s *SignalImp[E]) Attach(observer Observer[E], observerID ...any) Disposable {
	id := resolveID(observer, observerID)
	dispose := disposableFunc(func() {
		s.Detach(observer, id)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.observers {
		if e.id == id {
			return dispose
		}
	}
	s.observers = append(s.observers, entry[E]{id: id, observer: observer})
	return dispose
}

func (s *SignalImp[E]) Detach(observer Observer[E], observerID ...any) {
	id := resolveID(observer, observerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.observers {
		if e.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Notify calls every observer and combines their errors.
func (s *SignalImp[E]) Notify(event E) error {
	s.mu.RLock()
	observers := append([]entry[E](nil), s.observers...)
	s.mu.RUnlock()

	var result error
	for _, e := range observers {
		if err := e.observer(event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

func resolveID[E any](observer Observer[E], observerID []any) any {
	if len(observerID) > 0 {
		return observerID[0]
	}
	return makeID(observer)
}

func makeID[E any](observer Observer[E]) uintptr {
	return reflect.ValueOf(observer).Pointer()
}
