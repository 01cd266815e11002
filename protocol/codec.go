package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/najoast/roadsim/core"
)

// Payload fields are fixed-width big-endian int32s.
const fieldSize = 4

var (
	// ErrShortPayload is returned when a payload has fewer bytes than its fields need
	ErrShortPayload = errors.New("payload too short")

	// ErrUnknownTag is returned when decoding a message on an unexpected channel
	ErrUnknownTag = errors.New("unknown message tag")
)

func putInts(vals ...int) []byte {
	buf := make([]byte, len(vals)*fieldSize)
	for i, v := range vals {
		binary.BigEndian.PutUint32(buf[i*fieldSize:], uint32(int32(v)))
	}
	return buf
}

func readInts(data []byte, n int) ([]int, error) {
	if len(data) < n*fieldSize {
		return nil, fmt.Errorf("need %d bytes, got %d: %w", n*fieldSize, len(data), ErrShortPayload)
	}
	vals := make([]int, n)
	for i := range vals {
		vals[i] = int(int32(binary.BigEndian.Uint32(data[i*fieldSize:])))
	}
	return vals, nil
}

func (a Assign) Marshal() []byte { return putInts(int(a.Role)) }

func (a *Assign) Unmarshal(data []byte) error {
	v, err := readInts(data, 1)
	if err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	a.Role = Role(v[0])
	return nil
}

func (u JunctionUpdate) Marshal() []byte { return putInts(int(u.Op), u.Junction) }

func (u *JunctionUpdate) Unmarshal(data []byte) error {
	v, err := readInts(data, 2)
	if err != nil {
		return fmt.Errorf("junction update: %w", err)
	}
	u.Op, u.Junction = JunctionOp(v[0]), v[1]
	return nil
}

func (u RoadUpdate) Marshal() []byte { return putInts(int(u.Op), u.Junction, u.Road) }

func (u *RoadUpdate) Unmarshal(data []byte) error {
	v, err := readInts(data, 3)
	if err != nil {
		return fmt.Errorf("road update: %w", err)
	}
	u.Op, u.Junction, u.Road = RoadOp(v[0]), v[1], v[2]
	return nil
}

func (r ControlReport) Marshal() []byte { return putInts(int(r.Outcome), r.Passengers) }

func (r *ControlReport) Unmarshal(data []byte) error {
	v, err := readInts(data, 2)
	if err != nil {
		return fmt.Errorf("control report: %w", err)
	}
	r.Outcome, r.Passengers = Outcome(v[0]), v[1]
	return nil
}

func (r RoadSpeedRequest) Marshal() []byte { return putInts(r.Junction) }

func (r *RoadSpeedRequest) Unmarshal(data []byte) error {
	v, err := readInts(data, 1)
	if err != nil {
		return fmt.Errorf("road speed request: %w", err)
	}
	r.Junction = v[0]
	return nil
}

// Marshal encodes a count prefix followed by the speeds.
func (r RoadSpeedReply) Marshal() []byte {
	vals := make([]int, 0, len(r.Speeds)+1)
	vals = append(vals, len(r.Speeds))
	vals = append(vals, r.Speeds...)
	return putInts(vals...)
}

func (r *RoadSpeedReply) Unmarshal(data []byte) error {
	n, err := readInts(data, 1)
	if err != nil {
		return fmt.Errorf("road speed reply: %w", err)
	}
	if n[0] < 0 {
		return fmt.Errorf("road speed reply: negative count %d", n[0])
	}
	v, err := readInts(data[fieldSize:], n[0])
	if err != nil {
		return fmt.Errorf("road speed reply: %w", err)
	}
	r.Speeds = v
	return nil
}

func (r JunctionInfoRequest) Marshal() []byte { return putInts(r.Junction, int(r.Query)) }

func (r *JunctionInfoRequest) Unmarshal(data []byte) error {
	v, err := readInts(data, 2)
	if err != nil {
		return fmt.Errorf("junction info request: %w", err)
	}
	r.Junction, r.Query = v[0], InfoQuery(v[1])
	return nil
}

func (r JunctionInfoReply) Marshal() []byte { return putInts(r.Value) }

func (r *JunctionInfoReply) Unmarshal(data []byte) error {
	v, err := readInts(data, 1)
	if err != nil {
		return fmt.Errorf("junction info reply: %w", err)
	}
	r.Value = v[0]
	return nil
}

// Decode decodes an inbound one-way message or request by its tag.
// Replies are decoded by the caller, which knows what it asked for.
func Decode(msg *core.Message) (Payload, error) {
	switch msg.Tag {
	case core.TagAssign:
		var p Assign
		err := p.Unmarshal(msg.Data)
		return p, err
	case core.TagJunction:
		var p JunctionUpdate
		err := p.Unmarshal(msg.Data)
		return p, err
	case core.TagRoad:
		var p RoadUpdate
		err := p.Unmarshal(msg.Data)
		return p, err
	case core.TagStatistic:
		var p ControlReport
		err := p.Unmarshal(msg.Data)
		return p, err
	case core.TagRoadSpeed:
		var p RoadSpeedRequest
		err := p.Unmarshal(msg.Data)
		return p, err
	case core.TagJunctionInfo:
		var p JunctionInfoRequest
		err := p.Unmarshal(msg.Data)
		return p, err
	default:
		return nil, fmt.Errorf("tag %s: %w", msg.Tag, ErrUnknownTag)
	}
}
