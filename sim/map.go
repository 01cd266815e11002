package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/protocol"
	"github.com/najoast/roadsim/roadmap"
)

// MinRoadSpeed is the floor of a road's effective speed.
const MinRoadSpeed = 10

type junctionState struct {
	live    int
	total   int
	crashes int
	enabled int
}

type roadState struct {
	live  int
	speed int
	total int
	peak  int
}

// MapActor owns the live state of every junction and road. All reads and
// writes from other actors arrive as messages on its endpoint.
type MapActor struct {
	graph     *roadmap.Graph
	junctions []junctionState
	roads     [][]roadState

	self      *core.Endpoint
	transport core.Transport
	clock     Clock
	logger    *log.Logger

	minuteLength time.Duration
	refresh      time.Duration
	start        time.Time
	minutes      int
	violations   int
}

// MapOptions configures a MapActor.
type MapOptions struct {
	MinuteLength time.Duration
	Refresh      time.Duration
	Clock        Clock
}

// NewMapActor builds the map state for g.
func NewMapActor(g *roadmap.Graph, self *core.Endpoint, transport core.Transport, opts MapOptions, logger *log.Logger) *MapActor {
	if opts.Clock == nil {
		opts.Clock = WallClock()
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 100 * time.Millisecond
	}

	m := &MapActor{
		graph:        g,
		junctions:    make([]junctionState, g.NumJunctions()),
		roads:        make([][]roadState, g.NumJunctions()),
		self:         self,
		transport:    transport,
		clock:        opts.Clock,
		logger:       logger,
		minuteLength: opts.MinuteLength,
		refresh:      opts.Refresh,
		start:        opts.Clock.Now(),
	}
	for i, j := range g.Junctions {
		m.roads[i] = make([]roadState, len(j.Roads))
	}
	m.recompute()
	return m
}

// Run serves one message per step until ctx is cancelled.
func (m *MapActor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	m.logger.Info("map ready", "junctions", m.graph.NumJunctions(), "roads", m.graph.NumRoads(), "lights", m.graph.NumLights())
	for {
		if ctx.Err() != nil {
			return nil
		}
		m.recompute()

		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.self.Chan():
			m.handle(ctx, m.self.Accept(msg))
		case <-ticker.C:
		}
	}
}

// recompute advances the minute counter, cycles lights and refreshes speeds.
func (m *MapActor) recompute() {
	m.minutes = elapsedMinutes(m.clock.Now().Sub(m.start), m.minuteLength)
	for i, j := range m.graph.Junctions {
		if j.HasLight && len(j.Roads) > 0 {
			m.junctions[i].enabled = m.minutes % len(j.Roads)
		}
		for k, r := range j.Roads {
			rs := &m.roads[i][k]
			rs.speed = atLeast(r.MaxSpeed-rs.live, MinRoadSpeed)
		}
	}
}

func (m *MapActor) handle(ctx context.Context, msg *core.Message) {
	reply, err := m.apply(msg)
	if err != nil {
		m.logger.Warn("bad map message", "from", msg.Source, "tag", msg.Tag, "err", err)
	}
	if !msg.IsRequest() || reply == nil {
		return
	}
	if err := m.transport.Reply(ctx, msg, reply.Marshal()); err != nil {
		m.logger.Debug("reply not delivered", "to", msg.Source, "err", err)
	}
}

// apply mutates or reads map state for one message. Requests always get a
// reply payload, even when the request itself is invalid.
func (m *MapActor) apply(msg *core.Message) (protocol.Payload, error) {
	p, err := protocol.Decode(msg)
	if err != nil {
		switch msg.Tag {
		case core.TagRoadSpeed:
			return protocol.RoadSpeedReply{}, err
		case core.TagJunctionInfo:
			return protocol.JunctionInfoReply{Value: -1}, err
		}
		return nil, err
	}

	switch p := p.(type) {
	case protocol.JunctionUpdate:
		return nil, m.updateJunction(p)
	case protocol.RoadUpdate:
		return nil, m.updateRoad(p)
	case protocol.RoadSpeedRequest:
		return m.speeds(p.Junction)
	case protocol.JunctionInfoRequest:
		return m.info(p)
	default:
		return nil, fmt.Errorf("map does not handle %s", msg.Tag)
	}
}

func (m *MapActor) updateJunction(u protocol.JunctionUpdate) error {
	if !m.graph.Valid(u.Junction) {
		return fmt.Errorf("%s at unknown junction %d", u.Op, u.Junction)
	}
	js := &m.junctions[u.Junction]
	switch u.Op {
	case protocol.JunctionArrive:
		js.live++
		js.total++
	case protocol.JunctionLeave:
		if js.live == 0 {
			m.violations++
			return fmt.Errorf("leave on empty junction %d", u.Junction)
		}
		js.live--
	case protocol.JunctionCrash:
		js.crashes++
	default:
		return fmt.Errorf("unknown junction op %d", int(u.Op))
	}
	return nil
}

func (m *MapActor) updateRoad(u protocol.RoadUpdate) error {
	if !m.graph.Valid(u.Junction) || u.Road < 0 || u.Road >= len(m.roads[u.Junction]) {
		return fmt.Errorf("%s on unknown road %d/%d", u.Op, u.Junction, u.Road)
	}
	rs := &m.roads[u.Junction][u.Road]
	switch u.Op {
	case protocol.RoadArrive:
		rs.live++
		rs.total++
		rs.peak = atLeast(rs.peak, rs.live)
	case protocol.RoadLeave:
		if rs.live == 0 {
			m.violations++
			return fmt.Errorf("leave on empty road %d/%d", u.Junction, u.Road)
		}
		rs.live--
	default:
		return fmt.Errorf("unknown road op %d", int(u.Op))
	}
	return nil
}

func (m *MapActor) speeds(junction int) (protocol.Payload, error) {
	if !m.graph.Valid(junction) {
		return protocol.RoadSpeedReply{}, fmt.Errorf("speeds at unknown junction %d", junction)
	}
	speeds := make([]int, len(m.roads[junction]))
	for i, rs := range m.roads[junction] {
		speeds[i] = rs.speed
	}
	return protocol.RoadSpeedReply{Speeds: speeds}, nil
}

func (m *MapActor) info(q protocol.JunctionInfoRequest) (protocol.Payload, error) {
	if !m.graph.Valid(q.Junction) {
		return protocol.JunctionInfoReply{Value: -1}, fmt.Errorf("info at unknown junction %d", q.Junction)
	}
	js := m.junctions[q.Junction]
	switch q.Query {
	case protocol.QueryLiveCount:
		return protocol.JunctionInfoReply{Value: js.live}, nil
	case protocol.QueryEnabledRoad:
		if !m.graph.Junctions[q.Junction].HasLight {
			return protocol.JunctionInfoReply{Value: -1}, nil
		}
		return protocol.JunctionInfoReply{Value: js.enabled}, nil
	default:
		return protocol.JunctionInfoReply{Value: -1}, fmt.Errorf("unknown query %d", int(q.Query))
	}
}

// Minutes returns the simulated minutes seen at the last recompute.
func (m *MapActor) Minutes() int {
	return m.minutes
}

// Violations counts LEAVE updates that would have driven a counter negative.
func (m *MapActor) Violations() int {
	return m.violations
}
