// Package bus is the many-to-many broadcast bus shared by market workers and
// the day scheduler. Every live subscription sees every message published
// after it subscribed; receivers filter on Receiver or Kind themselves.
package bus

import (
	"context"
	"errors"
	"sync"
)

// Scheduler is the reserved sender/receiver id of the day scheduler.
const Scheduler uint64 = 0

// Kind enumerates bus message kinds.
type Kind uint8

const (
	CloseMarket  Kind = iota + 1 // worker -> scheduler: every local actor finished
	ConfirmClose                 // scheduler -> worker: all markets closed, tear down
	Relay                        // cross-market payload, reserved for actor transfers
)

func (k Kind) String() string {
	switch k {
	case CloseMarket:
		return "close_market"
	case ConfirmClose:
		return "confirm_close"
	case Relay:
		return "relay"
	}
	return "unknown"
}

// Message is one bus envelope. Sender and Receiver are market ids, with
// Scheduler (0) standing for the scheduler.
type Message struct {
	Kind     Kind
	Sender   uint64
	Receiver uint64
	Payload  any
}

var (
	// ErrClosed is returned when publishing to or subscribing on a stopped hub.
	ErrClosed = errors.New("bus closed")

	// ErrDisconnected is returned by Receive once the hub has stopped and the
	// subscription's queue is drained.
	ErrDisconnected = errors.New("bus disconnected")
)

// Hub fans every published message out to every subscription.
type Hub struct {
	subs       map[*Subscription]bool
	register   chan *Subscription
	unregister chan *Subscription
	broadcast  chan Message
	done       chan struct{}

	// pub is held shared by Publish while it sends and exclusively by Run
	// while it stops, so nothing lands in broadcast after the final drain.
	pub sync.RWMutex
}

// New creates a hub. Call Run before subscribing or publishing.
func New() *Hub {
	return &Hub{
		subs:       make(map[*Subscription]bool),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		broadcast:  make(chan Message, 64),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled. On exit
// every subscription is disconnected.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for s := range h.subs {
			s.disconnect()
		}
		h.subs = nil
	}()

	for {
		select {
		case s := <-h.register:
			h.subs[s] = true
			close(s.ready)

		case s := <-h.unregister:
			if h.subs[s] {
				delete(h.subs, s)
				s.disconnect()
			}

		case m := <-h.broadcast:
			for s := range h.subs {
				s.push(m)
			}

		case <-ctx.Done():
			h.stop()
			return
		}
	}
}

// stop refuses new publishes, waits out any in progress, then delivers
// whatever was already accepted.
func (h *Hub) stop() {
	close(h.done)
	h.pub.Lock()
	defer h.pub.Unlock()
	for {
		select {
		case m := <-h.broadcast:
			for s := range h.subs {
				s.push(m)
			}
		default:
			return
		}
	}
}

// Subscribe returns a new subscription that sees every later message.
func (h *Hub) Subscribe() (*Subscription, error) {
	s := &Subscription{hub: h, notify: make(chan struct{}, 1), ready: make(chan struct{})}
	select {
	case h.register <- s:
	case <-h.done:
		return nil, ErrClosed
	}
	<-s.ready
	return s, nil
}

// Publish broadcasts m to every live subscription.
func (h *Hub) Publish(m Message) error {
	h.pub.RLock()
	defer h.pub.RUnlock()
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	select {
	case h.broadcast <- m:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// Subscription is one receiver handle. Its queue is unbounded so a slow
// receiver never blocks the hub.
type Subscription struct {
	hub    *Hub
	mu     sync.Mutex
	queue  []Message
	closed bool
	notify chan struct{}
	ready  chan struct{}
}

func (s *Subscription) push(m Message) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) disconnect() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Receive blocks for the next message. Queued messages are still delivered
// after the hub stops; then Receive returns ErrDisconnected.
func (s *Subscription) Receive(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			m := s.queue[0]
			s.queue[0] = Message{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return m, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Message{}, ErrDisconnected
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	select {
	case s.hub.unregister <- s:
	case <-s.hub.done:
		s.disconnect()
	}
}

// Pending returns the number of queued, unread messages.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
