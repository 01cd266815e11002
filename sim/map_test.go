package sim

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/protocol"
	"github.com/najoast/roadsim/roadmap"
)

func applyAll(t *testing.T, m *MapActor, payloads ...protocol.Payload) {
	t.Helper()
	for _, p := range payloads {
		if _, err := m.apply(protocol.NewMessage(5, testMapID, p)); err != nil {
			t.Fatalf("apply(%#v) failed: %v", p, err)
		}
	}
}

func TestRoadSpeedFormula(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50})
	f := newFabric(t, g, newManualClock())

	for live := 0; live <= 60; live++ {
		f.m.recompute()
		want := 50 - live
		if want < MinRoadSpeed {
			want = MinRoadSpeed
		}
		if got := f.m.roads[0][0].speed; got != want {
			t.Fatalf("live %d: speed %d, want %d", live, got, want)
		}
		applyAll(t, f.m, protocol.RoadUpdate{Op: protocol.RoadArrive, Junction: 0, Road: 0})
	}

	if f.m.roads[0][0].peak != 61 || f.m.roads[0][0].total != 61 {
		t.Errorf("Unexpected road tallies %+v", f.m.roads[0][0])
	}
}

func TestLightCycle(t *testing.T) {
	g := buildGraph(t, 4,
		roadmap.Road{From: 0, To: 1, Length: 10, MaxSpeed: 10},
		roadmap.Road{From: 0, To: 2, Length: 10, MaxSpeed: 10},
		roadmap.Road{From: 0, To: 3, Length: 10, MaxSpeed: 10},
	)
	if err := g.SetLight(0); err != nil {
		t.Fatalf("SetLight failed: %v", err)
	}
	clock := newManualClock()
	f := newFabric(t, g, clock)

	query := protocol.NewMessage(5, testMapID, protocol.JunctionInfoRequest{Junction: 0, Query: protocol.QueryEnabledRoad})
	want := []int{0, 1, 2, 0, 1, 2, 0}
	for minute, expected := range want {
		f.m.recompute()
		reply, err := f.m.apply(query)
		if err != nil {
			t.Fatalf("Minute %d: %v", minute, err)
		}
		if got := reply.(protocol.JunctionInfoReply).Value; got != expected {
			t.Errorf("Minute %d: enabled road %d, want %d", minute, got, expected)
		}
		clock.Advance(2 * time.Second)
	}

	unlit := protocol.NewMessage(5, testMapID, protocol.JunctionInfoRequest{Junction: 1, Query: protocol.QueryEnabledRoad})
	reply, _ := f.m.apply(unlit)
	if reply.(protocol.JunctionInfoReply).Value != -1 {
		t.Errorf("Expected -1 for an unlit junction, got %d", reply.(protocol.JunctionInfoReply).Value)
	}
}

func TestLeaveOnEmptyIsIgnored(t *testing.T) {
	g := buildGraph(t, 2, roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50})
	f := newFabric(t, g, newManualClock())

	if _, err := f.m.apply(protocol.NewMessage(5, testMapID, protocol.JunctionUpdate{Op: protocol.JunctionLeave, Junction: 0})); err == nil {
		t.Error("Expected error for leave on empty junction")
	}
	if _, err := f.m.apply(protocol.NewMessage(5, testMapID, protocol.RoadUpdate{Op: protocol.RoadLeave, Junction: 0, Road: 0})); err == nil {
		t.Error("Expected error for leave on empty road")
	}
	if _, err := f.m.apply(protocol.NewMessage(5, testMapID, protocol.RoadUpdate{Op: protocol.RoadArrive, Junction: 0, Road: 3})); err == nil {
		t.Error("Expected error for unknown road")
	}

	if f.m.junctions[0].live != 0 || f.m.roads[0][0].live != 0 {
		t.Error("Counters must never go negative")
	}
	if f.m.Violations() != 2 {
		t.Errorf("Expected 2 violations, got %d", f.m.Violations())
	}
}

func TestMapRunServesCalls(t *testing.T) {
	g := buildGraph(t, 3,
		roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50},
		roadmap.Road{From: 0, To: 2, Length: 100, MaxSpeed: 30},
	)
	router := core.NewRouter()
	self := router.NewEndpoint(core.EndpointOptions{Name: "map"})
	caller := router.NewEndpoint(core.EndpointOptions{Name: "vehicle"})
	m := NewMapActor(g, self, router, MapOptions{MinuteLength: time.Minute, Refresh: 10 * time.Millisecond}, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	runCtx, stop := context.WithCancel(ctx)
	go func() { done <- m.Run(runCtx) }()

	arrive := protocol.NewMessage(caller.ID(), self.ID(), protocol.RoadUpdate{Op: protocol.RoadArrive, Junction: 0, Road: 0})
	if err := router.Route(ctx, arrive); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	// the update and the request come from one sender, so they are served in order
	resp, err := router.Call(ctx, protocol.NewMessage(caller.ID(), self.ID(), protocol.RoadSpeedRequest{Junction: 0}))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	var speeds protocol.RoadSpeedReply
	if err := speeds.Unmarshal(resp.Data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(speeds.Speeds) != 2 || speeds.Speeds[0] != 49 || speeds.Speeds[1] != 30 {
		t.Errorf("Unexpected speeds %v", speeds.Speeds)
	}

	stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-ctx.Done():
		t.Fatal("Map did not stop")
	}
}

func TestWriteResults(t *testing.T) {
	g := buildGraph(t, 2,
		roadmap.Road{From: 0, To: 1, Length: 100, MaxSpeed: 50},
		roadmap.Road{From: 1, To: 0, Length: 100, MaxSpeed: 50},
	)
	f := newFabric(t, g, newManualClock())
	applyAll(t, f.m,
		protocol.JunctionUpdate{Op: protocol.JunctionArrive, Junction: 0},
		protocol.JunctionUpdate{Op: protocol.JunctionArrive, Junction: 0},
		protocol.JunctionUpdate{Op: protocol.JunctionCrash, Junction: 0},
		protocol.RoadUpdate{Op: protocol.RoadArrive, Junction: 0, Road: 0},
		protocol.RoadUpdate{Op: protocol.RoadArrive, Junction: 0, Road: 0},
		protocol.RoadUpdate{Op: protocol.RoadLeave, Junction: 0, Road: 0},
		protocol.RoadUpdate{Op: protocol.RoadArrive, Junction: 0, Road: 0},
	)

	var buf bytes.Buffer
	if err := WriteResults(&buf, f.m.Results()); err != nil {
		t.Fatalf("WriteResults failed: %v", err)
	}

	want := "Junction 0: 2 total vehicles and 1 crashes\n" +
		"--> Road from 0 to 1: Total vehicles 3 and 2 maximum concurrently\n" +
		"Junction 1: 0 total vehicles and 0 crashes\n" +
		"--> Road from 1 to 0: Total vehicles 0 and 0 maximum concurrently\n"
	if buf.String() != want {
		t.Errorf("Unexpected results:\n%s\nwant:\n%s", buf.String(), want)
	}
}
