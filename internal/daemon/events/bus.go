package events

import (
	"context"
	"reflect"
	"sync"

	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
)

// Bus is a typed, in-process event bus connecting the watcher, scheduler,
// debouncer and rebuild worker.
//
// Publish blocks until every matching subscriber accepted the event or ctx is
// done. Close closes every subscription channel. Events are not durable.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	closed bool
	subs   map[uint64]*subscription
}

type subscription struct {
	eventType reflect.Type
	send      func(ctx context.Context, evt any, done <-chan struct{}) error
	closeCh   func()

	// mu is held for reading by senders so the channel is never closed
	// while a send is in flight. done releases senders blocked on a full channel.
	mu       sync.RWMutex
	done     chan struct{}
	doneOnce sync.Once
	closed   bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a buffered subscription for events of type T.
//
// When T is an interface, every published event implementing it is delivered.
// The returned function unsubscribes and closes the channel. Events still
// being published to a closed subscription are dropped.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	sub := &subscription{
		eventType: reflect.TypeFor[T](),
		done:      make(chan struct{}),
		send: func(ctx context.Context, evt any, done <-chan struct{}) error {
			select {
			case ch <- evt.(T):
				return nil
			case <-done:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
					WithContext("event_type", reflect.TypeFor[T]().String()).
					Build()
			}
		},
		closeCh: func() { close(ch) },
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		_, ok := b.subs[id]
		delete(b.subs, id)
		b.mu.Unlock()
		if ok {
			sub.close()
		}
	}
}

func (s *subscription) deliver(ctx context.Context, evt any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	return s.send(ctx, evt, s.done)
}

func (s *subscription) close() {
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeCh()
}

// SubscriberCount returns the number of active subscribers for events of type T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	want := reflect.TypeFor[T]()
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.eventType == want {
			n++
		}
	}
	return n
}

func (s *subscription) matches(evtType reflect.Type) bool {
	if s.eventType == evtType {
		return true
	}
	return s.eventType.Kind() == reflect.Interface && evtType.Implements(s.eventType)
}

// Publish delivers evt to all matching subscribers.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}

	evtType := reflect.TypeOf(evt)
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ferrors.RuntimeError("event bus is closed").Build()
	}
	var targets []*subscription
	for _, s := range b.subs {
		if s.matches(evtType) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the bus and all subscription channels.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
