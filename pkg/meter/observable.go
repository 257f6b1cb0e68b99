package meter

import (
	"context"
	"sync"

	"github.com/tomjod/forcemeter/pkg/connector"
)

// observable holds a value and pushes every update to subscribers. A slow subscriber loses the
// oldest queued updates, never the latest one.
type observable[T any] struct {
	lock        sync.Mutex
	value       T
	subscribers map[chan T]struct{}
	closed      bool
}

func newObservable[T any](initial T) *observable[T] {
	return &observable[T]{value: initial, subscribers: make(map[chan T]struct{})}
}

func (o *observable[T]) Load() T {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.value
}

func (o *observable[T]) Store(v T) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.value = v
	for ch := range o.subscribers {
		offer(ch, v)
	}
}

// Update applies fn to the current value under the lock and publishes the result.
func (o *observable[T]) Update(fn func(T) T) T {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.value = fn(o.value)
	for ch := range o.subscribers {
		offer(ch, o.value)
	}
	return o.value
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Subscribe returns a channel that first receives the current value and then every update. The
// channel is closed when ctx is done or the observable is closed.
func (o *observable[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, connector.BufferSize)
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		close(ch)
		return ch
	}
	ch <- o.value
	o.subscribers[ch] = struct{}{}
	context.AfterFunc(ctx, func() {
		o.unsubscribe(ch)
	})
	return ch
}

func (o *observable[T]) unsubscribe(ch chan T) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if _, ok := o.subscribers[ch]; ok {
		delete(o.subscribers, ch)
		close(ch)
	}
}

func (o *observable[T]) Close() {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for ch := range o.subscribers {
		delete(o.subscribers, ch)
		close(ch)
	}
}
