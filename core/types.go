package core

import (
	"time"
)

// ActorID represents a unique identifier for a message endpoint.
// Pool slots and the pool master each own exactly one.
type ActorID uint32

// NoActor is the zero ActorID, never handed out by a Router.
const NoActor ActorID = 0

// Tag distinguishes message channels sharing one mailbox.
type Tag uint8

// Message represents communication data between actors.
type Message struct {
	// ID is a unique identifier for this message
	ID uint64

	// Tag indicates the message channel
	Tag Tag

	// Source is the ID of the sending endpoint
	Source ActorID

	// Target is the ID of the receiving endpoint
	Target ActorID

	// Session is used for request-reply correlation
	Session uint32

	// Data contains the encoded payload
	Data []byte

	// Timestamp when the message was created
	Timestamp time.Time
}

// IsRequest reports whether the sender waits for a reply.
func (m *Message) IsRequest() bool {
	return m.Session != 0
}

// Message tags used by the simulation protocol.
const (
	// TagAssign tells a freshly woken worker which role to run
	TagAssign Tag = iota + 1

	// TagJunction carries junction occupancy updates
	TagJunction

	// TagRoad carries road occupancy updates
	TagRoad

	// TagStatistic carries vehicle outcome reports for Control
	TagStatistic

	// TagRoadSpeed carries road speed requests and replies
	TagRoadSpeed

	// TagJunctionInfo carries junction info requests and replies
	TagJunctionInfo
)

// String returns the string representation of Tag.
func (t Tag) String() string {
	switch t {
	case TagAssign:
		return "assign"
	case TagJunction:
		return "junction"
	case TagRoad:
		return "road"
	case TagStatistic:
		return "statistic"
	case TagRoadSpeed:
		return "road-speed"
	case TagJunctionInfo:
		return "junction-info"
	default:
		return "unknown"
	}
}

// EndpointOptions contains configuration options for creating an Endpoint.
type EndpointOptions struct {
	// MailboxSize sets the size of the endpoint's message queue
	MailboxSize int

	// Name is a human-readable name for the endpoint
	Name string
}

// DefaultEndpointOptions returns sensible default options.
func DefaultEndpointOptions() EndpointOptions {
	return EndpointOptions{
		MailboxSize: 1024,
	}
}

// EndpointStats contains runtime statistics for an Endpoint.
type EndpointStats struct {
	// ID of the endpoint
	ID ActorID

	// Name of the endpoint
	Name string

	// Total messages received
	MessagesReceived uint64

	// Messages currently in mailbox
	MailboxSize int

	// Calls currently waiting for a reply
	PendingCalls int
}
