package server

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/soapscribe/soapscribe/internal/notes"
	"github.com/soapscribe/soapscribe/internal/session"
)

// Event is a server-sent event to deliver to subscribed clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type subscription struct {
	owner string
	ch    chan []byte
}

type ownedEvent struct {
	owner string
	event Event
}

// Broker fans out server-sent events to connected clients, scoped by owner
// identity: a client only ever receives events for its own clinician.
//
// Concurrency model: a single internal event loop owns the client set. Public
// methods communicate with the loop through channels, so no mutexes are
// required.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan ownedEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a Broker and starts its event loop.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan ownedEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	// Channel → owner identity.
	clients := make(map[chan []byte]string)

	broadcast := func(owner string, event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, payload)

		for ch, o := range clients {
			if o != owner {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.owner

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			broadcast(ev.owner, ev.event)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for owner's events and returns its channel.
func (b *Broker) Subscribe(owner string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{owner: owner, ch: ch}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish delivers an event to all of owner's connected clients.
func (b *Broker) Publish(owner string, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ownedEvent{owner: owner, event: event}:
	case <-b.stopped:
	}
}

// PublishNotes publishes a notes.changed event carrying owner's full
// refreshed record list. Wire this to [notes.Watched.Subscribe].
func (b *Broker) PublishNotes(owner string, records []notes.Record) {
	b.Publish(owner, Event{Type: "notes.changed", Data: map[string]any{
		"records": records,
	}})
}

// PublishSession publishes a session.changed event carrying the fresh
// controller snapshot. Wire this to the controller's change callback.
func (b *Broker) PublishSession(snap session.Snapshot) {
	b.Publish(snap.Owner, Event{Type: "session.changed", Data: snap})
}
