package engine

import "sync"

type handler[T any] struct {
	id int
	fn func(T)
}

// observers is a typed subscriber list. Handlers run synchronously on the
// emitting goroutine, in subscription order.
type observers[T any] struct {
	mu       sync.RWMutex
	next     int
	handlers []handler[T]
}

func (o *observers[T]) add(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	id := o.next
	o.handlers = append(o.handlers, handler[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers[T]) remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, h := range o.handlers {
		if h.id == id {
			o.handlers = append(o.handlers[:i:i], o.handlers[i+1:]...)
			return
		}
	}
}

func (o *observers[T]) emit(v T) {
	o.mu.RLock()
	hs := o.handlers
	o.mu.RUnlock()
	for _, h := range hs {
		h.fn(v)
	}
}
