package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewEndpoint(t *testing.T) {
	opts := DefaultEndpointOptions()
	opts.Name = "test-endpoint"

	ep := NewEndpoint(1, opts)

	if ep.ID() != 1 {
		t.Errorf("Expected endpoint ID 1, got %d", ep.ID())
	}

	stats := ep.Stats()
	if stats.Name != "test-endpoint" {
		t.Errorf("Expected endpoint name 'test-endpoint', got '%s'", stats.Name)
	}
	if stats.MailboxSize != 0 {
		t.Errorf("Expected empty mailbox, got %d", stats.MailboxSize)
	}
}

func TestEndpointSendReceive(t *testing.T) {
	ep := NewEndpoint(3, DefaultEndpointOptions())
	ctx := context.Background()

	if _, ok := ep.TryReceive(); ok {
		t.Fatal("Expected empty mailbox")
	}

	for i := 0; i < 3; i++ {
		msg := &Message{Tag: TagJunction, Source: 7, Target: 3, Data: []byte{byte(i)}}
		if err := ep.Send(ctx, msg); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}
	}

	// FIFO per sender
	for i := 0; i < 3; i++ {
		msg, err := ep.Receive(ctx)
		if err != nil {
			t.Fatalf("Failed to receive message: %v", err)
		}
		if msg.Data[0] != byte(i) {
			t.Errorf("Expected message %d, got %d", i, msg.Data[0])
		}
	}

	if got := ep.Stats().MessagesReceived; got != 3 {
		t.Errorf("Expected 3 received messages, got %d", got)
	}
}

func TestEndpointSendBlocksWhenFull(t *testing.T) {
	ep := NewEndpoint(4, EndpointOptions{MailboxSize: 1})

	if err := ep.Send(context.Background(), &Message{Tag: TagRoad}); err != nil {
		t.Fatalf("Failed to send first message: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ep.Send(ctx, &Message{Tag: TagRoad})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded on full mailbox, got %v", err)
	}
}

func TestEndpointReceiveCancelled(t *testing.T) {
	ep := NewEndpoint(5, DefaultEndpointOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ep.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context canceled, got %v", err)
	}
}

func TestRouter(t *testing.T) {
	router := NewRouter()

	ep1 := NewEndpoint(10, DefaultEndpointOptions())
	ep2 := NewEndpoint(20, DefaultEndpointOptions())

	if err := router.Register(ep1); err != nil {
		t.Fatalf("Failed to register ep1: %v", err)
	}
	if err := router.Register(ep2); err != nil {
		t.Fatalf("Failed to register ep2: %v", err)
	}
	if err := router.Register(ep1); !errors.Is(err, ErrDuplicateActor) {
		t.Errorf("Expected duplicate error, got %v", err)
	}

	found, exists := router.Lookup(10)
	if !exists {
		t.Fatal("Endpoint 10 not found")
	}
	if found.ID() != 10 {
		t.Errorf("Expected endpoint ID 10, got %d", found.ID())
	}

	ids := router.List()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("Expected [10 20], got %v", ids)
	}

	if err := router.Unregister(10); err != nil {
		t.Fatalf("Failed to unregister endpoint: %v", err)
	}
	if _, exists := router.Lookup(10); exists {
		t.Error("Endpoint 10 should not exist after unregister")
	}
}

func TestRouterRoute(t *testing.T) {
	router := NewRouter()
	target := router.NewEndpoint(DefaultEndpointOptions())
	ctx := context.Background()

	err := router.Route(ctx, &Message{Tag: TagStatistic, Source: 99, Target: target.ID(), Data: []byte("x")})
	if err != nil {
		t.Fatalf("Failed to route: %v", err)
	}

	msg, ok := target.TryReceive()
	if !ok {
		t.Fatal("Expected routed message")
	}
	if msg.ID == 0 || msg.Timestamp.IsZero() {
		t.Errorf("Expected router to stamp ID and timestamp, got %+v", msg)
	}

	err = router.Route(ctx, &Message{Tag: TagStatistic, Target: 12345})
	if !errors.Is(err, ErrUnknownActor) {
		t.Errorf("Expected unknown actor error, got %v", err)
	}
}

func TestRouterCallReply(t *testing.T) {
	router := NewRouter()
	server := router.NewEndpoint(EndpointOptions{Name: "server", MailboxSize: 8})
	client := router.NewEndpoint(EndpointOptions{Name: "client", MailboxSize: 8})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		req, err := server.Receive(ctx)
		if err != nil {
			return
		}
		reply := append([]byte("echo:"), req.Data...)
		_ = router.Reply(ctx, req, reply)
	}()

	resp, err := router.Call(ctx, &Message{
		Tag:    TagRoadSpeed,
		Source: client.ID(),
		Target: server.ID(),
		Data:   []byte("hi"),
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(resp.Data) != "echo:hi" {
		t.Errorf("Expected 'echo:hi', got %q", resp.Data)
	}
	if resp.Source != server.ID() || resp.Target != client.ID() {
		t.Errorf("Reply addressed %d->%d, want %d->%d", resp.Source, resp.Target, server.ID(), client.ID())
	}

	// the reply never lands in the caller's mailbox
	if _, ok := client.TryReceive(); ok {
		t.Error("Reply leaked into the caller mailbox")
	}
	if client.Stats().PendingCalls != 0 {
		t.Errorf("Expected no pending calls, got %d", client.Stats().PendingCalls)
	}
}

func TestRouterCallTimeout(t *testing.T) {
	router := NewRouter()
	server := router.NewEndpoint(DefaultEndpointOptions())
	client := router.NewEndpoint(DefaultEndpointOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := router.Call(ctx, &Message{Tag: TagJunctionInfo, Source: client.ID(), Target: server.ID()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	req, ok := server.TryReceive()
	if !ok {
		t.Fatal("Expected the request to be queued")
	}
	if err := router.Reply(context.Background(), req, nil); err == nil {
		t.Error("Expected error replying to an abandoned session")
	}
}

func TestReplyRequiresSession(t *testing.T) {
	router := NewRouter()
	ep := router.NewEndpoint(DefaultEndpointOptions())

	err := router.Reply(context.Background(), &Message{Tag: TagRoad, Source: ep.ID()}, nil)
	if err == nil {
		t.Error("Expected error replying to a one-way message")
	}
}

func TestHandleManager(t *testing.T) {
	hm := NewHandleManager()

	handle, err := hm.Bind(ServiceMap, 2)
	if err != nil {
		t.Fatalf("Failed to bind handle: %v", err)
	}
	if handle.ActorID != 2 {
		t.Errorf("Expected actor ID 2, got %d", handle.ActorID)
	}

	id, ok := hm.Resolve(ServiceMap)
	if !ok || id != 2 {
		t.Errorf("Expected map at 2, got %d (%v)", id, ok)
	}

	name, ok := hm.NameOf(2)
	if !ok || name != ServiceMap {
		t.Errorf("Expected name %q, got %q", ServiceMap, name)
	}

	if _, err := hm.Bind(ServiceMap, 3); err == nil {
		t.Error("Expected error for duplicate service name")
	}

	if _, err := hm.Bind(ServiceControl, 1); err != nil {
		t.Fatalf("Failed to bind control: %v", err)
	}
	handles := hm.List()
	if len(handles) != 2 || handles[0].Name != ServiceControl {
		t.Errorf("Expected sorted handles, got %v", handles)
	}

	if err := hm.Release(ServiceMap); err != nil {
		t.Fatalf("Failed to release handle: %v", err)
	}
	if _, ok := hm.Resolve(ServiceMap); ok {
		t.Error("Handle should not exist after release")
	}
}
