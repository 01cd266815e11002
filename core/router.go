package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnknownActor is returned when a message targets an unregistered endpoint
	ErrUnknownActor = errors.New("unknown actor")

	// ErrDuplicateActor is returned when an endpoint id is registered twice
	ErrDuplicateActor = errors.New("actor already registered")
)

// Router maps actor ids to endpoints and implements Transport.
type Router struct {
	// Map of ActorID to *Endpoint
	endpoints sync.Map

	// Counter for generating unique actor IDs
	idCounter uint32

	// Counter for message IDs
	msgCounter uint64
}

var _ Transport = (*Router)(nil)

// NewRouter creates a new Router instance.
func NewRouter() *Router {
	return &Router{}
}

// NextID generates the next available ActorID.
func (r *Router) NextID() ActorID {
	return ActorID(atomic.AddUint32(&r.idCounter, 1))
}

// NewEndpoint allocates an id, creates an endpoint and registers it.
func (r *Router) NewEndpoint(opts EndpointOptions) *Endpoint {
	ep := NewEndpoint(r.NextID(), opts)
	// ids from NextID are unique, Register cannot fail here
	_ = r.Register(ep)
	return ep
}

// Register adds an Endpoint to the routing table.
func (r *Router) Register(ep *Endpoint) error {
	if ep == nil {
		return fmt.Errorf("cannot register nil endpoint")
	}
	if _, exists := r.endpoints.LoadOrStore(ep.ID(), ep); exists {
		return fmt.Errorf("endpoint %d: %w", ep.ID(), ErrDuplicateActor)
	}
	return nil
}

// Unregister removes an Endpoint from the routing table.
func (r *Router) Unregister(id ActorID) error {
	if _, exists := r.endpoints.LoadAndDelete(id); !exists {
		return fmt.Errorf("endpoint %d: %w", id, ErrUnknownActor)
	}
	return nil
}

// Lookup finds an Endpoint by its ID.
func (r *Router) Lookup(id ActorID) (*Endpoint, bool) {
	if ep, exists := r.endpoints.Load(id); exists {
		return ep.(*Endpoint), true
	}
	return nil, false
}

// List returns all registered ids in ascending order.
func (r *Router) List() []ActorID {
	var ids []ActorID
	r.endpoints.Range(func(key, value interface{}) bool {
		ids = append(ids, key.(ActorID))
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Route sends a message to the target endpoint.
func (r *Router) Route(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("cannot route nil message")
	}

	ep, exists := r.Lookup(msg.Target)
	if !exists {
		return fmt.Errorf("route %s message: target %d: %w", msg.Tag, msg.Target, ErrUnknownActor)
	}

	msg.ID = atomic.AddUint64(&r.msgCounter, 1)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return ep.Send(ctx, msg)
}

// Call sends msg and blocks until the target replies or ctx is done.
// The reply is correlated on the caller's endpoint, named by msg.Source.
func (r *Router) Call(ctx context.Context, msg *Message) (*Message, error) {
	caller, exists := r.Lookup(msg.Source)
	if !exists {
		return nil, fmt.Errorf("call from %d: %w", msg.Source, ErrUnknownActor)
	}

	session, respChan := caller.openSession()
	defer caller.closeSession(session)
	msg.Session = session

	if err := r.Route(ctx, msg); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("call %s to %d: %w", msg.Tag, msg.Target, ctx.Err())
	}
}

// Reply answers a request received through Call.
func (r *Router) Reply(ctx context.Context, req *Message, data []byte) error {
	if !req.IsRequest() {
		return fmt.Errorf("%s message %d is not a request", req.Tag, req.ID)
	}

	caller, exists := r.Lookup(req.Source)
	if !exists {
		return fmt.Errorf("reply to %d: %w", req.Source, ErrUnknownActor)
	}

	resp := &Message{
		ID:        atomic.AddUint64(&r.msgCounter, 1),
		Tag:       req.Tag,
		Source:    req.Target,
		Target:    req.Source,
		Session:   req.Session,
		Data:      data,
		Timestamp: time.Now(),
	}
	return caller.deliverReply(resp)
}
