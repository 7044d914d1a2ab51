package notify

import (
	"sync"
	"time"
)

// Live publishes immutable snapshots to subscribers, batched through a
// Bundler. Snapshots are only computed when someone is subscribed.
type Live[T any] struct {
	snapshot func() T
	bundler  *Bundler

	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
}

// NewLive creates a live value whose state is read by snapshot at fire time
func NewLive[T any](window time.Duration, snapshot func() T) *Live[T] {
	l := &Live[T]{
		snapshot: snapshot,
		subs:     make(map[int]chan T),
	}
	l.bundler = NewBundler(window, l.refresh)
	return l
}

// Invalidate marks the state as changed
func (l *Live[T]) Invalidate() {
	l.bundler.Invalidate()
}

// Subscribe returns a channel that receives the latest snapshot after each
// batch. Slow readers only ever see the newest snapshot. The returned func
// unsubscribes and closes the channel.
func (l *Live[T]) Subscribe() (<-chan T, func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	ch := make(chan T, 1)
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if _, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(ch)
			}
		})
	}
}

// HasSubscribers reports whether anyone is listening
func (l *Live[T]) HasSubscribers() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs) > 0
}

// Flush delivers a pending batch now
func (l *Live[T]) Flush() {
	l.bundler.Flush()
}

// Stop cancels pending deliveries and closes every subscription
func (l *Live[T]) Stop() {
	l.bundler.Stop()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, ch := range l.subs {
		close(ch)
		delete(l.subs, id)
	}
}

func (l *Live[T]) refresh() {
	if !l.HasSubscribers() {
		return
	}
	v := l.snapshot()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		publish(ch, v)
	}
}

// publish replaces an unread value instead of blocking
func publish[T any](ch chan T, v T) {
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
