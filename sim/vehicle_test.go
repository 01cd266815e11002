package sim

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/protocol"
	"github.com/najoast/roadsim/roadmap"
)

func newTestVehicle(f *fabric, self core.ActorID, g *roadmap.Graph, clock Clock, seed int64) *VehicleActor {
	return NewVehicleActor(self, testMapID, testControlID, f, g, rand.New(rand.NewSource(seed)),
		VehicleOptions{PollInterval: 50 * time.Millisecond, Clock: clock}, quietLogger())
}

func TestVehicleArrives(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50})
	clock := newManualClock()
	f := newFabric(t, g, clock)
	a := newTestVehicle(f, 10, g, clock, 1)

	v := a.newVehicle(Car, 0, 1)
	v.Passengers, v.Fuel = 3, 40
	if err := a.begin(context.Background(), v); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if a.Vehicle().State() != AtJunction {
		t.Fatalf("Expected at-junction after spawn, got %s", a.Vehicle().State())
	}

	drive(t, a, clock, 10)

	snap := f.agg.Snapshot()
	if snap.Arrived != 1 || snap.PassengersDelivered != 3 || snap.PassengersStranded != 0 {
		t.Errorf("Unexpected counters %+v", snap)
	}
	if f.m.junctions[0].live != 0 || f.m.junctions[1].live != 0 || f.m.roads[0][0].live != 0 {
		t.Error("Expected every location released")
	}
	if f.m.roads[0][0].total != 1 || f.m.junctions[1].total != 1 {
		t.Error("Expected the road and the destination to be counted once")
	}

	want := []protocol.Outcome{protocol.OutcomeSpawned, protocol.OutcomeArrived}
	got := f.outcomes(10)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected reports %v, got %v", want, got)
	}
}

func TestVehicleRunsOutOfFuel(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 1000, MaxSpeed: 50})
	clock := newManualClock()
	f := newFabric(t, g, clock)
	a := newTestVehicle(f, 10, g, clock, 1)

	v := a.newVehicle(Bus, 0, 1)
	v.Passengers, v.Fuel = 42, 1
	if err := a.begin(context.Background(), v); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	drive(t, a, clock, 10)

	snap := f.agg.Snapshot()
	if snap.FuelExhausted != 1 || snap.PassengersStranded != 42 || snap.Arrived != 0 {
		t.Errorf("Unexpected counters %+v", snap)
	}
	for _, o := range f.outcomes(10) {
		if o == protocol.OutcomeArrived {
			t.Error("Vehicle out of fuel must not also arrive")
		}
	}
	if f.m.roads[0][0].live != 0 || f.m.junctions[0].live != 0 {
		t.Error("Expected occupied road released")
	}
	if f.m.Violations() != 0 {
		t.Errorf("Unexpected %d violations", f.m.Violations())
	}
}

func TestVehicleWaitsForLight(t *testing.T) {
	g := buildGraph(t, 3,
		roadmap.Road{From: 0, To: 1, Length: 50, MaxSpeed: 50},
		roadmap.Road{From: 0, To: 2, Length: 50, MaxSpeed: 50},
	)
	if err := g.SetLight(0); err != nil {
		t.Fatalf("SetLight failed: %v", err)
	}
	clock := newManualClock()
	f := newFabric(t, g, clock)
	a := newTestVehicle(f, 10, g, clock, 1)

	v := a.newVehicle(Coach, 0, 2)
	v.Fuel = 100
	if err := a.begin(context.Background(), v); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	// minute 0 enables road 0, the vehicle wants road 1
	wait, err := a.Step(context.Background())
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if wait != 50*time.Millisecond || a.Vehicle().State() != Departing {
		t.Fatalf("Expected a held departure, got %s waiting %v", a.Vehicle().State(), wait)
	}
	if f.m.junctions[0].live != 1 || f.m.roads[0][1].live != 1 {
		t.Error("A held vehicle occupies both its junction and its road")
	}

	clock.Advance(2 * time.Second)
	if _, err := a.Step(context.Background()); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if a.Vehicle().State() != OnRoad {
		t.Errorf("Expected release on minute 1, got %s", a.Vehicle().State())
	}
	if f.m.junctions[0].live != 0 {
		t.Error("Expected junction released")
	}
}

func TestVehicleCollision(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50})

	crashes := 0
	for seed := int64(1); seed <= 50; seed++ {
		clock := newManualClock()
		f := newFabric(t, g, clock)
		for i := 0; i < 49; i++ {
			applyAll(t, f.m, protocol.JunctionUpdate{Op: protocol.JunctionArrive, Junction: 0})
		}

		a := newTestVehicle(f, 10, g, clock, seed)
		v := a.newVehicle(Car, 0, 1)
		v.Passengers, v.Fuel = 2, 40
		if err := a.begin(context.Background(), v); err != nil {
			t.Fatalf("begin failed: %v", err)
		}
		if _, err := a.Step(context.Background()); err != nil {
			t.Fatalf("Step failed: %v", err)
		}

		snap := f.agg.Snapshot()
		switch a.Vehicle().State() {
		case Terminated:
			crashes++
			if snap.Crashed != 1 || snap.PassengersStranded != 2 || f.m.junctions[0].crashes != 1 {
				t.Errorf("Seed %d: unexpected crash tallies %+v", seed, snap)
			}
			if f.m.roads[0][0].live != 0 || f.m.junctions[0].live != 49 {
				t.Errorf("Seed %d: crashed vehicle left occupancy behind", seed)
			}
		case OnRoad:
			if snap.Crashed != 0 || f.m.junctions[0].live != 49 {
				t.Errorf("Seed %d: released vehicle left occupancy behind", seed)
			}
		default:
			t.Errorf("Seed %d: unexpected state %s", seed, a.Vehicle().State())
		}
	}
	if crashes == 0 {
		t.Error("Expected at least one crash at a crowded junction")
	}
}

func TestVehicleNoRouteMidJourney(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50})
	clock := newManualClock()
	f := newFabric(t, g, clock)
	a := newTestVehicle(f, 10, g, clock, 1)

	v := a.newVehicle(Car, 1, 0)
	if err := a.begin(context.Background(), v); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := a.Step(context.Background()); !errors.Is(err, ErrNoRoute) {
		t.Errorf("Expected ErrNoRoute, got %v", err)
	}
}

func TestVehicleSpawn(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50})
	clock := newManualClock()
	f := newFabric(t, g, clock)
	a := newTestVehicle(f, 10, g, clock, 7)

	ok, err := a.Spawn(context.Background())
	if err != nil || !ok {
		t.Fatalf("Spawn = (%v, %v), want a spawned vehicle", ok, err)
	}

	v := a.Vehicle()
	if v.Source != 0 || v.Dest != 1 {
		t.Errorf("Only 0->1 is routable, got %d->%d", v.Source, v.Dest)
	}
	spec := v.Class.Spec()
	if v.MaxSpeed != spec.MaxSpeed || v.Passengers < 1 || v.Passengers > spec.PassengerCap {
		t.Errorf("Vehicle %+v does not match class %s", v, v.Class)
	}
	if v.Fuel < spec.MinFuel || v.Fuel >= spec.MaxFuel {
		t.Errorf("Fuel %d outside [%d,%d)", v.Fuel, spec.MinFuel, spec.MaxFuel)
	}
	if f.agg.Snapshot().Spawned != 1 || f.m.junctions[0].live != 1 {
		t.Error("Expected spawn reported and source junction occupied")
	}

	single := newTestVehicle(f, 11, roadmap.New(1), clock, 7)
	if ok, err := single.Spawn(context.Background()); ok || err != nil {
		t.Errorf("Expected no spawn on a one-junction map, got (%v, %v)", ok, err)
	}
}

// TestConservation drives a crowd of vehicles over a ring and checks the
// global counters and per-vehicle road pairing after every round.
func TestConservation(t *testing.T) {
	g := buildGraph(t, 5,
		roadmap.Road{From: 0, To: 1, Length: 120, MaxSpeed: 60},
		roadmap.Road{From: 1, To: 2, Length: 80, MaxSpeed: 40},
		roadmap.Road{From: 2, To: 3, Length: 200, MaxSpeed: 100},
		roadmap.Road{From: 3, To: 4, Length: 60, MaxSpeed: 30},
		roadmap.Road{From: 4, To: 0, Length: 90, MaxSpeed: 90},
		roadmap.Road{From: 0, To: 3, Length: 300, MaxSpeed: 120},
		roadmap.Road{From: 2, To: 0, Length: 100, MaxSpeed: 50},
	)
	if err := g.SetLight(0); err != nil {
		t.Fatalf("SetLight failed: %v", err)
	}
	if err := g.SetLight(2); err != nil {
		t.Fatalf("SetLight failed: %v", err)
	}

	clock := newManualClock()
	f := newFabric(t, g, clock)
	ctx := context.Background()

	var fleet []*VehicleActor
	for i := 0; i < 30; i++ {
		a := newTestVehicle(f, core.ActorID(100+i), g, clock, int64(i+1))
		ok, err := a.Spawn(ctx)
		if err != nil || !ok {
			t.Fatalf("Vehicle %d failed to spawn: %v", i, err)
		}
		fleet = append(fleet, a)
	}

	for round := 0; round < 2000; round++ {
		alive := 0
		for _, a := range fleet {
			if a.Vehicle().State() == Terminated {
				continue
			}
			if _, err := a.Step(ctx); err != nil {
				t.Fatalf("Round %d: step failed: %v", round, err)
			}
			if a.Vehicle().State() != Terminated {
				alive++
			}
		}

		snap := f.agg.Snapshot()
		if snap.Spawned != snap.Arrived+snap.FuelExhausted+snap.Crashed+alive {
			t.Fatalf("Round %d: spawned %d != %d arrived + %d fuel + %d crashed + %d active",
				round, snap.Spawned, snap.Arrived, snap.FuelExhausted, snap.Crashed, alive)
		}
		if snap.Active() != alive {
			t.Fatalf("Round %d: Active() = %d, want %d", round, snap.Active(), alive)
		}
		if alive == 0 {
			break
		}
		clock.Advance(250 * time.Millisecond)
	}

	for _, a := range fleet {
		if a.Vehicle().State() != Terminated {
			t.Fatalf("Vehicle still %s after every fuel budget expired", a.Vehicle().State())
		}
	}
	if f.m.Violations() != 0 {
		t.Errorf("Unexpected %d occupancy violations", f.m.Violations())
	}
	for i := range f.m.junctions {
		if f.m.junctions[i].live != 0 {
			t.Errorf("Junction %d still holds %d vehicles", i, f.m.junctions[i].live)
		}
		for k := range f.m.roads[i] {
			if f.m.roads[i][k].live != 0 {
				t.Errorf("Road %d/%d still holds %d vehicles", i, k, f.m.roads[i][k].live)
			}
		}
	}

	// every road arrive is closed by exactly one leave of the same road
	// before the vehicle's next arrive
	open := make(map[core.ActorID]*protocol.RoadUpdate)
	for _, msg := range f.sent {
		if msg.Tag != core.TagRoad {
			continue
		}
		p, _ := protocol.Decode(msg)
		u := p.(protocol.RoadUpdate)
		switch u.Op {
		case protocol.RoadArrive:
			if open[msg.Source] != nil {
				t.Fatalf("Vehicle %d entered road %d/%d while on another", msg.Source, u.Junction, u.Road)
			}
			open[msg.Source] = &u
		case protocol.RoadLeave:
			cur := open[msg.Source]
			if cur == nil || cur.Junction != u.Junction || cur.Road != u.Road {
				t.Fatalf("Vehicle %d left road %d/%d it was not on", msg.Source, u.Junction, u.Road)
			}
			delete(open, msg.Source)
		}
	}
	if len(open) != 0 {
		t.Errorf("%d vehicles never left their road", len(open))
	}
}
