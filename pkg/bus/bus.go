// Package bus delivers values to an ordered set of in-process subscribers.
package bus

import (
	"fmt"
	"sync"

	"procsight/internal/pkg/logger"

	"github.com/google/uuid"
)

// Callback receives each published value.
type Callback[T any] func(T)

// Subscription identifies a registered callback. Cancel is safe to call more than once.
type Subscription struct {
	ID     uuid.UUID
	cancel func()
}

func (s *Subscription) Cancel() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

type entry[T any] struct {
	id     uuid.UUID
	cb     Callback[T]
	active bool
}

// Bus fans a value out to subscribers in registration order.
// A panicking subscriber is logged and skipped; delivery continues.
type Bus[T any] struct {
	mu      sync.RWMutex
	entries []*entry[T]
	closed  bool

	name   string
	logger logger.ILogger
}

func New[T any](name string, log logger.ILogger) *Bus[T] {
	return &Bus[T]{name: name, logger: log}
}

// Subscribe registers cb. Registering the same function twice yields two subscriptions.
func (b *Bus[T]) Subscribe(cb Callback[T]) *Subscription {
	e := &entry[T]{id: uuid.New(), cb: cb, active: true}

	b.mu.Lock()
	if !b.closed {
		b.entries = append(b.entries, e)
	} else {
		e.active = false
	}
	b.mu.Unlock()

	return &Subscription{ID: e.id, cancel: func() { b.remove(e) }}
}

func (b *Bus[T]) remove(target *entry[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target.active = false
	for i, e := range b.entries {
		if e == target {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			break
		}
	}
}

// Publish delivers v to every subscriber registered at call time and
// returns how many were invoked. Subscribers cancelled mid-pass are skipped.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	targets := make([]*entry[T], len(b.entries))
	copy(targets, b.entries)
	b.mu.RUnlock()

	delivered := 0
	for _, e := range targets {
		if !b.isActive(e) {
			continue
		}
		if b.invoke(e, v) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus[T]) isActive(e *entry[T]) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return e.active
}

func (b *Bus[T]) invoke(e *entry[T], v T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.logger.Error("Bus", "Subscriber panicked", map[string]interface{}{
				"bus":           b.name,
				"subscriber_id": e.id.String(),
				"panic":         fmt.Sprint(r),
			})
		}
	}()
	e.cb(v)
	return true
}

// Len reports the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Close drops every subscriber. Later Subscribe calls return inert subscriptions.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.entries {
		e.active = false
	}
	b.entries = nil
	b.closed = true
}
