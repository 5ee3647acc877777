package event

import (
	"fmt"
	"sync"
)

// Handler receives a fired value.
type Handler[T any] func(T)

// Emitter is a fire-and-forget broadcaster with zero or more subscribers.
// Handlers run synchronously in the firing goroutine, in subscription order.
type Emitter[T any] struct {
	mu      sync.RWMutex
	subs    []*entry[T]
	nextID  uint64
	closed  bool
	onPanic func(error)
}

type entry[T any] struct {
	id      uint64
	handler Handler[T]
}

// Option configures an Emitter.
type Option func(*options)

type options struct {
	onPanic func(error)
}

// WithPanicHandler installs a callback invoked when a handler panics.
// The panic is converted to an error wrapping ErrHandlerPanic. Without a
// panic handler the panic is swallowed and delivery continues.
func WithPanicHandler(fn func(error)) Option {
	return func(o *options) {
		o.onPanic = fn
	}
}

// NewEmitter creates an emitter.
func NewEmitter[T any](opts ...Option) *Emitter[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Emitter[T]{onPanic: o.onPanic}
}

// Subscribe registers a handler for every fired value.
func (e *Emitter[T]) Subscribe(h Handler[T]) *Subscription {
	if h == nil {
		return &Subscription{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return &Subscription{}
	}

	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, &entry[T]{id: id, handler: h})

	return &Subscription{cancel: func() { e.remove(id) }}
}

// Fire delivers v to all current subscribers.
func (e *Emitter[T]) Fire(v T) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	// Snapshot so handlers may subscribe or cancel while being called.
	targets := make([]*entry[T], len(e.subs))
	copy(targets, e.subs)
	e.mu.Unlock()

	for _, s := range targets {
		e.call(s, v)
	}
}

// Close drops all subscribers. Fire after Close is a no-op.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	e.closed = true
	e.subs = nil
	e.mu.Unlock()
}

func (e *Emitter[T]) call(s *entry[T], v T) {
	defer func() {
		if r := recover(); r != nil && e.onPanic != nil {
			e.onPanic(&HandlerError{SubscriptionID: s.id, Err: fmt.Errorf("%w: %v", ErrHandlerPanic, r)})
		}
	}()
	s.handler(v)
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Subscription is returned by Subscribe and cancels delivery.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel stops delivery to the handler. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Disposables collects cancel functions released together.
type Disposables struct {
	mu  sync.Mutex
	fns []func()
}

// Add appends a disposal function.
func (d *Disposables) Add(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.fns = append(d.fns, fn)
	d.mu.Unlock()
}

// AddSubscription appends a subscription's Cancel.
func (d *Disposables) AddSubscription(s *Subscription) {
	d.Add(s.Cancel)
}

// Dispose runs every collected function in reverse order and empties the list.
func (d *Disposables) Dispose() {
	d.mu.Lock()
	fns := d.fns
	d.fns = nil
	d.mu.Unlock()

	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
