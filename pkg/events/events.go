package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened in the dispatch core.
type EventType string

const (
	EventConnectionAccepted   EventType = "connection.accepted"
	EventConnectionDispatched EventType = "connection.dispatched"
	EventConnectionReturned   EventType = "connection.returned"
	EventWorkerRespawned      EventType = "worker.respawned"
	EventHandlerReloaded      EventType = "handler.reloaded"
	EventPostCommitted        EventType = "post.committed"
)

// Event is one occurrence in the connection lifecycle or worker pool,
// fanned out to anything observing the daemon from inside the process.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// subscriberBuf is how many events a slow subscriber can lag behind
// before Publish starts dropping events meant for it.
const subscriberBuf = 50

// Broker fans out published events to every live subscriber. Publish
// does the broadcast itself under Broker's lock rather than handing off
// to an internal dispatch goroutine over a buffered channel: there is
// no second buffer to overflow independently of the subscribers', and
// Stop has nothing to drain before it can close every subscriber.
type Broker struct {
	mu          sync.Mutex
	subscribers []Subscriber
	stopped     bool
}

// NewBroker constructs an empty Broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{}
}

// Start is a no-op, kept so callers can treat Broker like the other
// long-lived components (Acceptor, Monitor) with a symmetrical
// Start/Stop pair: Broker has no background loop to launch, since
// Publish broadcasts synchronously under the lock.
func (b *Broker) Start() {}

// Stop closes every subscriber channel and rejects further Subscribe or
// Publish calls. It is idempotent.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true

	for _, sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = nil
}

// Subscribe registers a new subscription and returns its channel. A
// Subscribe after Stop returns an already-closed channel rather than
// panicking or blocking.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuf)
	if b.stopped {
		close(sub)
		return sub
	}

	b.subscribers = append(b.subscribers, sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. A no-op if sub is not
// currently registered.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish stamps event with an id and timestamp if unset, then delivers
// it to every current subscriber without blocking: a subscriber whose
// buffer is full simply misses it. Publish after Stop is a silent no-op.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	for _, sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
