package liveview

import (
	"context"
	"sync"
)

// sendLatest replaces any undelivered value on `c` so that a slow consumer
// always observes the most recent value. Intermediate values may be dropped,
// the latest never is.
// `c` must have capacity 1 and a single producer.
func sendLatest[T any](c chan T, value T) {
	for {
		select {
		case c <- value:
			return
		default:
			select {
			case <-c:
			default:
			}
		}
	}
}

// combineLatest emits `combine(a, b)` whenever either input emits, using each
// input's most recent value. The first emission waits until both inputs have
// emitted once. `combine` runs on the operator goroutine, never on the caller
// or on the producers. The output channel is conflated and is left open when
// the context ends.
func combineLatest[A any, B any, R any](
	ctx context.Context,
	as <-chan A,
	bs <-chan B,
	combine func(A, B) R,
) <-chan R {
	out := make(chan R, 1)
	go func() {
		var a A
		var b B
		hasA := false
		hasB := false
		for {
			select {
			case <-ctx.Done():
				return
			case a = <-as:
				hasA = true
			case b = <-bs:
				hasB = true
			}
			if hasA && hasB {
				sendLatest(out, combine(a, b))
			}
		}
	}()
	return out
}

// Watchable is a current value plus change notification. Callbacks are
// invoked in value order and conflated: a callback never observes an older
// value after a newer one, and intermediate values may be skipped under
// concurrent sets.
type Watchable[T any] struct {
	stateLock sync.Mutex
	value     T
	version   uint64

	// serializes delivery so versions cannot invert across goroutines
	deliverLock      sync.Mutex
	deliveredVersion uint64

	callbacks *CallbackList[func(T)]
}

func NewWatchable[T any](value T) *Watchable[T] {
	return &Watchable[T]{
		value:     value,
		callbacks: NewCallbackList[func(T)](),
	}
}

func (self *Watchable[T]) Get() T {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.value
}

func (self *Watchable[T]) Set(value T) {
	self.stateLock.Lock()
	self.version += 1
	version := self.version
	self.value = value
	self.stateLock.Unlock()

	self.notify(value, version)
}

// Update atomically derives the next value from the current one.
func (self *Watchable[T]) Update(update func(T) T) T {
	self.stateLock.Lock()
	value := update(self.value)
	self.version += 1
	version := self.version
	self.value = value
	self.stateLock.Unlock()

	self.notify(value, version)
	return value
}

func (self *Watchable[T]) notify(value T, version uint64) {
	self.deliverLock.Lock()
	defer self.deliverLock.Unlock()

	if version <= self.deliveredVersion {
		// a newer value was already delivered
		return
	}
	self.deliveredVersion = version

	for _, callback := range self.callbacks.Get() {
		func() {
			defer recover()
			callback(value)
		}()
	}
}

// the callback does not fire with the current value on add, use `Get`
func (self *Watchable[T]) AddCallback(callback func(T)) func() {
	callbackId := self.callbacks.Add(callback)
	return func() {
		self.callbacks.Remove(callbackId)
	}
}

// Watch returns a conflated channel primed with the current value.
// The channel is left open when the context ends.
func (self *Watchable[T]) Watch(ctx context.Context) <-chan T {
	c := make(chan T, 1)

	// register under the deliver lock so the primed value
	// cannot race an in-flight notification
	self.deliverLock.Lock()
	callbackId := self.callbacks.Add(func(value T) {
		sendLatest(c, value)
	})
	c <- self.Get()
	self.deliverLock.Unlock()

	go func() {
		<-ctx.Done()
		self.callbacks.Remove(callbackId)
	}()
	return c
}
