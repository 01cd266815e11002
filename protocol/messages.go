// Package protocol defines the typed messages vehicles exchange with the
// Map and Control actors, and their binary encoding.
package protocol

import (
	"fmt"

	"github.com/najoast/roadsim/core"
)

// Role selects which actor a woken worker runs.
type Role int32

const (
	RoleControl Role = iota
	RoleMap
	RoleVehicle
)

// String returns the string representation of Role.
func (r Role) String() string {
	switch r {
	case RoleControl:
		return "control"
	case RoleMap:
		return "map"
	case RoleVehicle:
		return "vehicle"
	default:
		return fmt.Sprintf("role(%d)", int32(r))
	}
}

// JunctionOp is the operation carried by a JunctionUpdate.
type JunctionOp int32

const (
	JunctionArrive JunctionOp = iota + 1
	JunctionLeave
	// JunctionCrash records a collision at the junction
	JunctionCrash
)

// String returns the string representation of JunctionOp.
func (op JunctionOp) String() string {
	switch op {
	case JunctionArrive:
		return "arrive"
	case JunctionLeave:
		return "leave"
	case JunctionCrash:
		return "crash"
	default:
		return fmt.Sprintf("junction-op(%d)", int32(op))
	}
}

// RoadOp is the operation carried by a RoadUpdate.
type RoadOp int32

const (
	RoadArrive RoadOp = iota + 1
	RoadLeave
)

// String returns the string representation of RoadOp.
func (op RoadOp) String() string {
	switch op {
	case RoadArrive:
		return "arrive"
	case RoadLeave:
		return "leave"
	default:
		return fmt.Sprintf("road-op(%d)", int32(op))
	}
}

// Outcome is the event a ControlReport records.
type Outcome int32

const (
	OutcomeNoFuel Outcome = iota + 1
	OutcomeCollision
	OutcomeArrived
	OutcomeSpawned
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoFuel:
		return "no-fuel"
	case OutcomeCollision:
		return "collision"
	case OutcomeArrived:
		return "arrived"
	case OutcomeSpawned:
		return "spawned"
	default:
		return fmt.Sprintf("outcome(%d)", int32(o))
	}
}

// InfoQuery selects the value a JunctionInfoRequest asks for.
type InfoQuery int32

const (
	// QueryLiveCount asks for the number of vehicles at the junction
	QueryLiveCount InfoQuery = iota + 1
	// QueryEnabledRoad asks for the road index the traffic light enables
	QueryEnabledRoad
)

// String returns the string representation of InfoQuery.
func (q InfoQuery) String() string {
	switch q {
	case QueryLiveCount:
		return "live-count"
	case QueryEnabledRoad:
		return "enabled-road"
	default:
		return fmt.Sprintf("query(%d)", int32(q))
	}
}

// Payload is implemented by every protocol message body.
type Payload interface {
	// Tag is the channel the payload travels on.
	Tag() core.Tag

	// Marshal encodes the payload.
	Marshal() []byte
}

// Assign tells a woken worker which role to run.
type Assign struct {
	Role Role
}

// JunctionUpdate changes junction occupancy.
type JunctionUpdate struct {
	Op       JunctionOp
	Junction int
}

// RoadUpdate changes road occupancy. Road indexes the origin junction's roads.
type RoadUpdate struct {
	Op       RoadOp
	Junction int
	Road     int
}

// ControlReport records a vehicle outcome.
type ControlReport struct {
	Outcome    Outcome
	Passengers int
}

// RoadSpeedRequest asks for the current speeds of a junction's roads.
type RoadSpeedRequest struct {
	Junction int
}

// RoadSpeedReply lists current speeds in road order.
type RoadSpeedReply struct {
	Speeds []int
}

// JunctionInfoRequest asks for one integer about a junction.
type JunctionInfoRequest struct {
	Junction int
	Query    InfoQuery
}

// JunctionInfoReply answers a JunctionInfoRequest.
type JunctionInfoReply struct {
	Value int
}

func (Assign) Tag() core.Tag              { return core.TagAssign }
func (JunctionUpdate) Tag() core.Tag      { return core.TagJunction }
func (RoadUpdate) Tag() core.Tag          { return core.TagRoad }
func (ControlReport) Tag() core.Tag       { return core.TagStatistic }
func (RoadSpeedRequest) Tag() core.Tag    { return core.TagRoadSpeed }
func (RoadSpeedReply) Tag() core.Tag      { return core.TagRoadSpeed }
func (JunctionInfoRequest) Tag() core.Tag { return core.TagJunctionInfo }
func (JunctionInfoReply) Tag() core.Tag   { return core.TagJunctionInfo }

// NewMessage wraps a payload in a core message addressed from -> to.
func NewMessage(from, to core.ActorID, p Payload) *core.Message {
	return &core.Message{
		Tag:    p.Tag(),
		Source: from,
		Target: to,
		Data:   p.Marshal(),
	}
}
