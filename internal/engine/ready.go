package engine

import (
	"context"

	"resdex/internal/resource"
)

func (e *Engine) readyChan(domain resource.Domain) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.ready[domain]
	if !ok {
		ch = make(chan struct{})
		e.ready[domain] = ch
	}
	return ch
}

// WhenReady blocks until the first revalidation of domain has finished.
func (e *Engine) WhenReady(ctx context.Context, domain resource.Domain) error {
	select {
	case <-e.readyChan(domain):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) markReady(domain resource.Domain) {
	ch := e.readyChan(domain)
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
}
