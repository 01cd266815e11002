package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Endpoint owns the mailbox of one actor identity.
// An endpoint outlives the actors that run on it: a pool slot keeps its
// endpoint across every wake/sleep cycle.
type Endpoint struct {
	id   ActorID
	name string

	// Channel for receiving messages
	mailbox chan *Message

	// Pending calls for synchronous communication
	pendingCalls   sync.Map // map[uint32]chan *Message
	pendingCount   int32
	sessionCounter uint32

	messagesReceived uint64
}

// NewEndpoint creates a new Endpoint instance.
func NewEndpoint(id ActorID, opts EndpointOptions) *Endpoint {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultEndpointOptions().MailboxSize
	}
	return &Endpoint{
		id:      id,
		name:    opts.Name,
		mailbox: make(chan *Message, opts.MailboxSize),
	}
}

// ID returns the unique identifier of this Endpoint.
func (e *Endpoint) ID() ActorID {
	return e.id
}

// Name returns the human-readable endpoint name.
func (e *Endpoint) Name() string {
	return e.name
}

// Send queues a message in this endpoint's mailbox.
// It blocks while the mailbox is full; dropping would break occupancy accounting.
func (e *Endpoint) Send(ctx context.Context, msg *Message) error {
	select {
	case e.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to endpoint %d: %w", e.id, ctx.Err())
	}
}

// Receive blocks until a message arrives or ctx is done.
func (e *Endpoint) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-e.mailbox:
		return e.Accept(msg), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive returns the next queued message without blocking.
func (e *Endpoint) TryReceive() (*Message, bool) {
	select {
	case msg := <-e.mailbox:
		return e.Accept(msg), true
	default:
		return nil, false
	}
}

// Chan exposes the mailbox for multiplexed selects.
func (e *Endpoint) Chan() <-chan *Message {
	return e.mailbox
}

// Accept records a message taken directly from Chan.
func (e *Endpoint) Accept(msg *Message) *Message {
	atomic.AddUint64(&e.messagesReceived, 1)
	return msg
}

// Stats returns current runtime statistics for this Endpoint.
func (e *Endpoint) Stats() EndpointStats {
	return EndpointStats{
		ID:               e.id,
		Name:             e.name,
		MessagesReceived: atomic.LoadUint64(&e.messagesReceived),
		MailboxSize:      len(e.mailbox),
		PendingCalls:     int(atomic.LoadInt32(&e.pendingCount)),
	}
}

// openSession allocates a session id and the channel its reply will land on.
func (e *Endpoint) openSession() (uint32, chan *Message) {
	session := atomic.AddUint32(&e.sessionCounter, 1)
	if session == 0 {
		session = atomic.AddUint32(&e.sessionCounter, 1)
	}
	respChan := make(chan *Message, 1)
	e.pendingCalls.Store(session, respChan)
	atomic.AddInt32(&e.pendingCount, 1)
	return session, respChan
}

func (e *Endpoint) closeSession(session uint32) {
	if _, ok := e.pendingCalls.LoadAndDelete(session); ok {
		atomic.AddInt32(&e.pendingCount, -1)
	}
}

// deliverReply hands a reply to the call waiting on its session.
func (e *Endpoint) deliverReply(resp *Message) error {
	respChan, ok := e.pendingCalls.Load(resp.Session)
	if !ok {
		return fmt.Errorf("endpoint %d has no pending session %d", e.id, resp.Session)
	}

	select {
	case respChan.(chan *Message) <- resp:
		return nil
	default:
		return fmt.Errorf("endpoint %d session %d already answered", e.id, resp.Session)
	}
}
