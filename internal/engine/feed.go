package engine

import (
	"log/slog"
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

// Event is one accepted change delivered to feed subscribers
type Event struct {
	Change     models.ChangeEvent
	Collection string
}

// Feed fans accepted changes out to in-process consumers (query layer,
// vector index, CRDT layer). Each subscriber gets a bounded mailbox; a
// subscriber that falls behind is dropped rather than allowed to block
// the engine. Dropped consumers recover through an ordinary pull against
// the change log.
type Feed struct {
	logger *slog.Logger
	subs   map[int]*Subscription
	nextID int
	mu     sync.Mutex
	closed bool
}

// Subscription is one subscriber's mailbox. C is closed when the
// subscription is dropped or the feed shuts down.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	feed *Feed
	id   int
}

// NewFeed creates an empty change feed
func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		logger: logger,
		subs:   make(map[int]*Subscription),
	}
}

// Subscribe registers a consumer with the given mailbox capacity
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, buffer)
	sub := &Subscription{
		C:    ch,
		ch:   ch,
		feed: f,
		id:   f.nextID,
	}
	f.nextID++

	if f.closed {
		close(ch)
		return sub
	}

	f.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its mailbox.
// Safe to call twice.
func (s *Subscription) Unsubscribe() {
	s.feed.drop(s.id)
}

// Publish delivers an event to every subscriber without blocking.
// Subscribers with a full mailbox are dropped.
func (f *Feed) Publish(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	for id, sub := range f.subs {
		select {
		case sub.ch <- event:
		default:
			// Отстающий подписчик: отключаем, не блокируя движок
			f.logger.Warn("Dropping slow feed subscriber", "subscriber_id", id)
			delete(f.subs, id)
			close(sub.ch)
		}
	}
}

// Close drops all subscribers and rejects future publishes
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
}

// drop removes a subscription by id
func (f *Feed) drop(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[id]
	if !ok {
		return
	}
	delete(f.subs, id)
	close(sub.ch)
}
