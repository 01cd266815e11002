package pool

import (
	"errors"
	"fmt"

	"github.com/najoast/roadsim/core"
)

// UnknownParent is the command payload when no requester is known.
const UnknownParent = -1

var (
	// ErrPoolExhausted is returned when no slot is idle under the quit policy.
	// The whole pool aborts with this error.
	ErrPoolExhausted = errors.New("worker pool exhausted")

	// ErrBlocked is returned to a requester when no slot is idle under the ignore policy
	ErrBlocked = errors.New("no idle worker")

	// ErrStopped is returned when the pool is no longer accepting requests
	ErrStopped = errors.New("worker pool stopped")

	// ErrInvalidPolicy is returned for an unrecognised exhaustion policy
	ErrInvalidPolicy = errors.New("invalid exhaustion policy")
)

// CommandKind identifies a manager/worker command.
type CommandKind uint8

const (
	CmdWake CommandKind = iota + 1
	CmdSleep
	CmdStop
	CmdStartRequest
	CmdRunComplete
)

func (k CommandKind) String() string {
	switch k {
	case CmdWake:
		return "wake"
	case CmdSleep:
		return "sleep"
	case CmdStop:
		return "stop"
	case CmdStartRequest:
		return "start-request"
	case CmdRunComplete:
		return "run-complete"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// Command is the unit exchanged between the manager and its workers.
// Data carries the requester id for Wake and StartRequest, and the slot
// index for Sleep.
type Command struct {
	Kind CommandKind
	Data int

	// reply carries the outcome of a StartRequest back to its own caller
	reply chan activation
}

type activation struct {
	slot core.ActorID
	err  error
}

// Policy decides what happens when Activate finds no idle slot.
type Policy string

const (
	// PolicyQuit aborts the whole pool
	PolicyQuit Policy = "quit"

	// PolicyIgnore drops the request and reports ErrBlocked to the requester
	PolicyIgnore Policy = "ignore"
)

// Validate checks the policy is known.
func (p Policy) Validate() error {
	switch p {
	case PolicyQuit, PolicyIgnore:
		return nil
	default:
		return fmt.Errorf("%q: %w", string(p), ErrInvalidPolicy)
	}
}
