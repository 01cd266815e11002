package core

import (
	"context"
)

// Transport moves messages between endpoints.
type Transport interface {
	// Route delivers msg to msg.Target, blocking while the target mailbox is full.
	Route(ctx context.Context, msg *Message) error

	// Call delivers msg and waits for the matching reply.
	Call(ctx context.Context, msg *Message) (*Message, error)

	// Reply answers a request received through Call.
	Reply(ctx context.Context, req *Message, data []byte) error
}
