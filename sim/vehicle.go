package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/protocol"
	"github.com/najoast/roadsim/roadmap"
	"github.com/najoast/roadsim/route"
)

// ErrNoRoute is returned when a vehicle already under way finds its
// destination unreachable. The network never loses roads, so this is fatal.
var ErrNoRoute = errors.New("no route to destination")

// Collision model: rand[0,8) times the junction's live count above this
// threshold is a crash.
const (
	collisionRoll      = 8
	collisionThreshold = 40
)

// VehicleState is the position of a vehicle in its life cycle.
type VehicleState int

const (
	Spawning VehicleState = iota
	AtJunction
	OnRoad
	Departing
	Terminated
)

func (s VehicleState) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case AtJunction:
		return "at-junction"
	case OnRoad:
		return "on-road"
	case Departing:
		return "departing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Vehicle is the private state of one vehicle actor.
type Vehicle struct {
	Class      VehicleClass
	Passengers int
	Source     int
	Dest       int
	MaxSpeed   int
	Fuel       int // seconds

	Speed     int
	Remaining float64
	Spawned   time.Time

	// Junction is -1 when not at a junction. Road indexes the roads of
	// RoadFrom and is -1 when not on a road.
	Junction int
	RoadFrom int
	Road     int

	lastMove time.Time
	done     bool
}

// State derives the life-cycle state from the location.
func (v Vehicle) State() VehicleState {
	switch {
	case v.done:
		return Terminated
	case v.Junction >= 0 && v.Road >= 0:
		return Departing
	case v.Junction >= 0:
		return AtJunction
	case v.Road >= 0:
		return OnRoad
	default:
		return Spawning
	}
}

// VehicleOptions configures vehicle actors.
type VehicleOptions struct {
	// PollInterval is how long a vehicle held at a red light waits
	// before asking again.
	PollInterval  time.Duration
	SpawnAttempts int
	Clock         Clock
}

// VehicleActor drives one vehicle from spawn to termination.
type VehicleActor struct {
	self      core.ActorID
	mapID     core.ActorID
	controlID core.ActorID
	transport core.Transport
	graph     *roadmap.Graph
	rng       *rand.Rand
	opts      VehicleOptions
	logger    *log.Logger

	v Vehicle
}

// NewVehicleActor creates a vehicle that talks to the given map and control actors.
func NewVehicleActor(self, mapID, controlID core.ActorID, transport core.Transport, g *roadmap.Graph,
	rng *rand.Rand, opts VehicleOptions, logger *log.Logger) *VehicleActor {
	if opts.Clock == nil {
		opts.Clock = WallClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.SpawnAttempts <= 0 {
		opts.SpawnAttempts = 1000
	}
	return &VehicleActor{
		self:      self,
		mapID:     mapID,
		controlID: controlID,
		transport: transport,
		graph:     g,
		rng:       rng,
		opts:      opts,
		logger:    logger,
		v:         Vehicle{Junction: -1, RoadFrom: -1, Road: -1},
	}
}

// Vehicle returns a copy of the vehicle state.
func (a *VehicleActor) Vehicle() Vehicle {
	return a.v
}

// Run spawns the vehicle and steps it until it terminates or ctx ends.
func (a *VehicleActor) Run(ctx context.Context) error {
	spawned, err := a.Spawn(ctx)
	if err != nil {
		return a.unlessStopped(ctx, err)
	}
	if !spawned {
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		wait, err := a.Step(ctx)
		if err != nil {
			return a.unlessStopped(ctx, err)
		}
		if a.v.done {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (a *VehicleActor) unlessStopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Spawn picks a class and a routable source/destination pair, then places
// the vehicle at its source. It reports false when no such pair was found.
func (a *VehicleActor) Spawn(ctx context.Context) (bool, error) {
	n := a.graph.NumJunctions()
	if n < 2 {
		a.logger.Warn("road map too small to spawn", "junctions", n)
		return false, nil
	}

	src := a.rng.Intn(n)
	for attempt := 0; attempt < a.opts.SpawnAttempts; attempt++ {
		dst := a.rng.Intn(n)
		if dst == src {
			continue
		}
		if route.Reachable(a.graph, src, dst) {
			return true, a.begin(ctx, a.newVehicle(randomClass(a.rng), src, dst))
		}
		src = a.rng.Intn(n)
	}

	a.logger.Warn("no routable journey found, vehicle abandoned", "attempts", a.opts.SpawnAttempts)
	return false, nil
}

func (a *VehicleActor) newVehicle(class VehicleClass, src, dst int) Vehicle {
	spec := class.Spec()
	return Vehicle{
		Class:      class,
		Passengers: randRange(a.rng, 1, spec.PassengerCap),
		Source:     src,
		Dest:       dst,
		MaxSpeed:   spec.MaxSpeed,
		Fuel:       randRange(a.rng, spec.MinFuel, spec.MaxFuel),
		Junction:   -1,
		RoadFrom:   -1,
		Road:       -1,
	}
}

// begin places v at its source junction.
func (a *VehicleActor) begin(ctx context.Context, v Vehicle) error {
	v.Spawned = a.opts.Clock.Now()
	v.Junction, v.RoadFrom, v.Road = v.Source, -1, -1
	a.v = v

	if err := a.report(ctx, protocol.OutcomeSpawned); err != nil {
		return err
	}
	a.logger.Debug("vehicle spawned", "class", v.Class, "from", v.Source, "to", v.Dest, "passengers", v.Passengers, "fuel", v.Fuel)
	return a.junctionUpdate(ctx, protocol.JunctionArrive, v.Source)
}

// Step advances the vehicle once and returns how long to wait before the
// next step.
func (a *VehicleActor) Step(ctx context.Context) (time.Duration, error) {
	v := &a.v
	if v.done {
		return 0, nil
	}
	now := a.opts.Clock.Now()

	if wholeSeconds(now.Sub(v.Spawned)) > v.Fuel {
		return 0, a.finish(ctx, protocol.OutcomeNoFuel)
	}

	if v.Road >= 0 && v.Junction < 0 {
		secs := wholeSeconds(now.Sub(v.lastMove))
		if secs < 1 {
			return untilNextSecond(now, v.lastMove), nil
		}
		v.lastMove = v.lastMove.Add(time.Duration(secs) * time.Second)
		v.Remaining -= float64(secs * v.Speed)
		if v.Remaining > 0 {
			return untilNextSecond(now, v.lastMove), nil
		}

		to := a.graph.Junctions[v.RoadFrom].Roads[v.Road].To
		if err := a.roadUpdate(ctx, protocol.RoadLeave); err != nil {
			return 0, err
		}
		if err := a.junctionUpdate(ctx, protocol.JunctionArrive, to); err != nil {
			return 0, err
		}
		v.RoadFrom, v.Road = -1, -1
		v.Junction = to
		v.Speed, v.Remaining = 0, 0
	}

	if v.Junction >= 0 && v.Road < 0 {
		if v.Junction == v.Dest {
			return 0, a.finish(ctx, protocol.OutcomeArrived)
		}
		if err := a.enterRoad(ctx); err != nil {
			return 0, err
		}
	}

	if v.Junction >= 0 && v.Road >= 0 {
		return a.depart(ctx, now)
	}
	return untilNextSecond(now, v.lastMove), nil
}

// enterRoad plans the next hop from the current junction and joins the
// matching road. The junction is not released yet.
func (a *VehicleActor) enterRoad(ctx context.Context) error {
	v := &a.v

	var speeds protocol.RoadSpeedReply
	if err := a.call(ctx, protocol.RoadSpeedRequest{Junction: v.Junction}, &speeds); err != nil {
		return err
	}

	hop, ok := route.NextHop(a.graph, v.Junction, v.Dest, speeds.Speeds)
	if !ok {
		return fmt.Errorf("vehicle at junction %d heading to %d: %w", v.Junction, v.Dest, ErrNoRoute)
	}
	idx := route.RoadTo(a.graph, v.Junction, hop)
	road := a.graph.Junctions[v.Junction].Roads[idx]

	v.RoadFrom, v.Road = v.Junction, idx
	if err := a.roadUpdate(ctx, protocol.RoadArrive); err != nil {
		return err
	}

	current := road.MaxSpeed
	if idx < len(speeds.Speeds) {
		current = speeds.Speeds[idx]
	}
	v.Speed = atMost(current, v.MaxSpeed)
	v.Remaining = float64(road.Length)
	return nil
}

// depart decides whether the vehicle may leave its junction for the
// chosen road.
func (a *VehicleActor) depart(ctx context.Context, now time.Time) (time.Duration, error) {
	v := &a.v

	if a.graph.Junctions[v.Junction].HasLight {
		var enabled protocol.JunctionInfoReply
		q := protocol.JunctionInfoRequest{Junction: v.Junction, Query: protocol.QueryEnabledRoad}
		if err := a.call(ctx, q, &enabled); err != nil {
			return 0, err
		}
		if enabled.Value != v.Road {
			return a.opts.PollInterval, nil
		}
	} else {
		var live protocol.JunctionInfoReply
		q := protocol.JunctionInfoRequest{Junction: v.Junction, Query: protocol.QueryLiveCount}
		if err := a.call(ctx, q, &live); err != nil {
			return 0, err
		}
		if a.rng.Intn(collisionRoll)*live.Value > collisionThreshold {
			if err := a.junctionUpdate(ctx, protocol.JunctionCrash, v.Junction); err != nil {
				return 0, err
			}
			return 0, a.finish(ctx, protocol.OutcomeCollision)
		}
	}

	if err := a.junctionUpdate(ctx, protocol.JunctionLeave, v.Junction); err != nil {
		return 0, err
	}
	v.Junction = -1
	v.lastMove = now
	return time.Second, nil
}

// finish reports the outcome, releases every occupied location and
// terminates the vehicle.
func (a *VehicleActor) finish(ctx context.Context, outcome protocol.Outcome) error {
	v := &a.v
	if err := a.report(ctx, outcome); err != nil {
		return err
	}
	if v.Road >= 0 {
		if err := a.roadUpdate(ctx, protocol.RoadLeave); err != nil {
			return err
		}
		v.RoadFrom, v.Road = -1, -1
	}
	if v.Junction >= 0 {
		if err := a.junctionUpdate(ctx, protocol.JunctionLeave, v.Junction); err != nil {
			return err
		}
		v.Junction = -1
	}
	v.done = true
	a.logger.Debug("vehicle finished", "outcome", outcome, "passengers", v.Passengers)
	return nil
}

func (a *VehicleActor) report(ctx context.Context, outcome protocol.Outcome) error {
	return a.send(ctx, a.controlID, protocol.ControlReport{Outcome: outcome, Passengers: a.v.Passengers})
}

func (a *VehicleActor) junctionUpdate(ctx context.Context, op protocol.JunctionOp, junction int) error {
	return a.send(ctx, a.mapID, protocol.JunctionUpdate{Op: op, Junction: junction})
}

func (a *VehicleActor) roadUpdate(ctx context.Context, op protocol.RoadOp) error {
	return a.send(ctx, a.mapID, protocol.RoadUpdate{Op: op, Junction: a.v.RoadFrom, Road: a.v.Road})
}

func (a *VehicleActor) send(ctx context.Context, to core.ActorID, p protocol.Payload) error {
	return a.transport.Route(ctx, protocol.NewMessage(a.self, to, p))
}

type replyPayload interface {
	Unmarshal([]byte) error
}

// call asks the map a question and decodes its answer into reply.
func (a *VehicleActor) call(ctx context.Context, p protocol.Payload, reply replyPayload) error {
	resp, err := a.transport.Call(ctx, protocol.NewMessage(a.self, a.mapID, p))
	if err != nil {
		return err
	}
	return reply.Unmarshal(resp.Data)
}

func untilNextSecond(now, since time.Time) time.Duration {
	if since.IsZero() {
		return time.Second
	}
	return time.Second - now.Sub(since)%time.Second
}
