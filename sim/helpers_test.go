package sim

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/protocol"
	"github.com/najoast/roadsim/roadmap"
)

const (
	testMapID     core.ActorID = 1
	testControlID core.ActorID = 2
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// lockedBuffer collects log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fabric delivers vehicle messages synchronously to a map actor and an
// aggregator, recording everything sent.
type fabric struct {
	m    *MapActor
	agg  Aggregator
	sent []*core.Message
}

func newFabric(t *testing.T, g *roadmap.Graph, clock Clock) *fabric {
	t.Helper()
	f := &fabric{}
	f.m = NewMapActor(g, nil, f, MapOptions{MinuteLength: 2 * time.Second, Clock: clock}, quietLogger())
	return f
}

func (f *fabric) Route(ctx context.Context, msg *core.Message) error {
	f.sent = append(f.sent, msg)
	switch msg.Target {
	case testMapID:
		f.m.recompute()
		// violations are counted by the map itself
		_, _ = f.m.apply(msg)
		return nil
	case testControlID:
		p, err := protocol.Decode(msg)
		if err != nil {
			return err
		}
		return f.agg.Apply(p.(protocol.ControlReport))
	default:
		return core.ErrUnknownActor
	}
}

func (f *fabric) Call(ctx context.Context, msg *core.Message) (*core.Message, error) {
	f.sent = append(f.sent, msg)
	f.m.recompute()
	reply, err := f.m.apply(msg)
	if err != nil {
		return nil, err
	}
	return &core.Message{Tag: msg.Tag, Source: msg.Target, Target: msg.Source, Data: reply.Marshal()}, nil
}

func (f *fabric) Reply(ctx context.Context, req *core.Message, data []byte) error {
	return nil
}

// outcomes lists the reports one sender made to control, in order.
func (f *fabric) outcomes(from core.ActorID) []protocol.Outcome {
	var out []protocol.Outcome
	for _, msg := range f.sent {
		if msg.Source != from || msg.Tag != core.TagStatistic {
			continue
		}
		p, _ := protocol.Decode(msg)
		out = append(out, p.(protocol.ControlReport).Outcome)
	}
	return out
}

func buildGraph(t *testing.T, n int, roads ...roadmap.Road) *roadmap.Graph {
	t.Helper()
	g := roadmap.New(n)
	for _, r := range roads {
		if err := g.AddRoad(r); err != nil {
			t.Fatalf("AddRoad(%+v) failed: %v", r, err)
		}
	}
	return g
}

// drive steps a vehicle, advancing the clock by each requested wait, until
// it terminates or the step budget runs out.
func drive(t *testing.T, a *VehicleActor, clock *manualClock, budget int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < budget; i++ {
		wait, err := a.Step(ctx)
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if a.Vehicle().State() == Terminated {
			return
		}
		clock.Advance(wait)
	}
	t.Fatalf("Vehicle still %s after %d steps", a.Vehicle().State(), budget)
}
