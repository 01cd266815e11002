// Package sim runs the road-traffic simulation: one map actor owning the
// road network, one control actor driving simulated time, and one vehicle
// actor per vehicle on the road, all hosted on pooled workers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/pool"
	"github.com/najoast/roadsim/protocol"
	"github.com/najoast/roadsim/roadmap"
)

// Options configures a Simulation.
type Options struct {
	Graph           *roadmap.Graph
	Pool            pool.Config
	Map             MapOptions
	Control         ControlOptions
	Vehicle         VehicleOptions
	InitialVehicles int
	SummaryEvery    int

	// ResultsPath is where the map actor writes its results on stop.
	// Empty skips the file.
	ResultsPath string

	// Seed for every actor's random source. Zero seeds from the clock.
	Seed int64
}

// Simulation wires the actors onto a worker pool.
type Simulation struct {
	opts    Options
	router  *core.Router
	handles *core.HandleManager
	pool    *pool.Pool
	master  *core.Endpoint
	logger  *log.Logger

	summaryEvery atomic.Int32

	seedMu sync.Mutex
	seeds  *rand.Rand

	mu      sync.Mutex
	results []JunctionResult
	final   Snapshot
	minutes int
}

// New builds the router, pool and master endpoint for a run.
func New(opts Options, logger *log.Logger) (*Simulation, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("simulation needs a road map")
	}
	if logger == nil {
		logger = log.Default()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulation{
		opts:    opts,
		router:  core.NewRouter(),
		handles: core.NewHandleManager(),
		logger:  logger,
		seeds:   rand.New(rand.NewSource(seed)),
	}
	s.summaryEvery.Store(int32(opts.SummaryEvery))
	s.opts.Control.SummaryEvery = &s.summaryEvery

	p, err := pool.New(opts.Pool, s.router, s.runWorker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	s.pool = p
	s.master = s.router.NewEndpoint(core.EndpointOptions{Name: "master"})
	return s, nil
}

// Run starts the pool, seeds the map, control and initial vehicles, and
// blocks until the run ends.
func (s *Simulation) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pool.Run(gctx) })
	g.Go(func() error { return s.seed(gctx) })
	return g.Wait()
}

// Shutdown stops the pool and waits for every worker.
func (s *Simulation) Shutdown(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// SetSummaryEvery changes the status line cadence of a running simulation.
func (s *Simulation) SetSummaryEvery(minutes int) {
	s.summaryEvery.Store(int32(minutes))
}

// PoolStats returns the worker pool snapshot.
func (s *Simulation) PoolStats() pool.Stats {
	return s.pool.Stats()
}

// Results returns the map's final tallies once it has stopped.
func (s *Simulation) Results() []JunctionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Summary returns the final counters and simulated minutes once control has stopped.
func (s *Simulation) Summary() (Snapshot, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.minutes
}

// seed starts the map first so its handle resolves before any vehicle exists.
func (s *Simulation) seed(ctx context.Context) error {
	for _, svc := range []struct {
		name string
		role protocol.Role
	}{
		{core.ServiceMap, protocol.RoleMap},
		{core.ServiceControl, protocol.RoleControl},
	} {
		if _, err := s.start(ctx, s.master.ID(), svc.role, svc.name); err != nil {
			return s.seedError(ctx, err)
		}
	}

	for i := 0; i < s.opts.InitialVehicles; i++ {
		_, err := s.start(ctx, s.master.ID(), protocol.RoleVehicle, "")
		if errors.Is(err, pool.ErrBlocked) {
			continue
		}
		if err != nil {
			return s.seedError(ctx, err)
		}
	}
	s.logger.Debug("simulation seeded", "vehicles", s.opts.InitialVehicles)
	return nil
}

func (s *Simulation) seedError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, pool.ErrStopped) {
		return nil
	}
	return fmt.Errorf("failed to seed simulation: %w", err)
}

// start activates a worker for requester, binds name to it when given,
// then tells it which role to run.
func (s *Simulation) start(ctx context.Context, requester core.ActorID, role protocol.Role, name string) (core.ActorID, error) {
	slot, err := s.pool.Activate(ctx, requester)
	if err != nil {
		return core.NoActor, err
	}
	if name != "" {
		if _, err := s.handles.Bind(name, slot); err != nil {
			s.logger.Warn("activated worker left without a role", "slot", slot, "role", role, "err", err)
			return core.NoActor, err
		}
	}
	msg := protocol.NewMessage(requester, slot, protocol.Assign{Role: role})
	if err := s.router.Route(ctx, msg); err != nil {
		s.logger.Warn("activated worker left without a role", "slot", slot, "role", role, "err", err)
		return core.NoActor, err
	}
	return slot, nil
}

func (s *Simulation) newRand() *rand.Rand {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return rand.New(rand.NewSource(s.seeds.Int63()))
}

// runWorker waits for the role assignment and runs that actor.
func (s *Simulation) runWorker(ctx context.Context, w *pool.Worker) error {
	msg, err := w.Endpoint().Receive(ctx)
	if err != nil {
		return nil
	}
	p, err := protocol.Decode(msg)
	assign, ok := p.(protocol.Assign)
	if err != nil || !ok {
		s.logger.Warn("worker woken without a role", "slot", w.Index(), "tag", msg.Tag, "err", err)
		return nil
	}

	switch assign.Role {
	case protocol.RoleMap:
		return s.runMap(ctx, w)
	case protocol.RoleControl:
		return s.runControl(ctx, w)
	case protocol.RoleVehicle:
		return s.runVehicle(ctx, w)
	default:
		return fmt.Errorf("unknown role %s", assign.Role)
	}
}

func (s *Simulation) runMap(ctx context.Context, w *pool.Worker) error {
	m := NewMapActor(s.opts.Graph, w.Endpoint(), s.router, s.opts.Map, s.logger.With("actor", "map"))
	if err := m.Run(ctx); err != nil {
		return err
	}

	results := m.Results()
	s.mu.Lock()
	s.results = results
	s.mu.Unlock()

	if m.Violations() > 0 {
		s.logger.Warn("occupancy protocol violations", "count", m.Violations())
	}
	if s.opts.ResultsPath == "" {
		return nil
	}
	if !w.Stopping() {
		s.logger.Warn("run aborted, results not written")
		return nil
	}
	if err := WriteResultsFile(s.opts.ResultsPath, results); err != nil {
		return err
	}
	s.logger.Info("results written", "path", s.opts.ResultsPath, "junctions", len(results))
	return nil
}

func (s *Simulation) runControl(ctx context.Context, w *pool.Worker) error {
	spawn := func(ctx context.Context) error {
		_, err := s.start(ctx, w.ID(), protocol.RoleVehicle, "")
		return err
	}
	c := NewControlActor(w.Endpoint(), s.opts.Control, spawn, w.RequestStop, s.newRand(), s.logger.With("actor", "control"))
	err := c.Run(ctx)

	s.mu.Lock()
	s.final, s.minutes = c.Snapshot(), c.Minutes()
	s.mu.Unlock()
	return err
}

func (s *Simulation) runVehicle(ctx context.Context, w *pool.Worker) error {
	mapID, ok := s.handles.Resolve(core.ServiceMap)
	if !ok {
		return fmt.Errorf("vehicle on slot %d: %s not bound", w.Index(), core.ServiceMap)
	}
	controlID, ok := s.handles.Resolve(core.ServiceControl)
	if !ok {
		return fmt.Errorf("vehicle on slot %d: %s not bound", w.Index(), core.ServiceControl)
	}

	a := NewVehicleActor(w.ID(), mapID, controlID, s.router, s.opts.Graph, s.newRand(), s.opts.Vehicle,
		s.logger.With("actor", "vehicle", "slot", w.Index(), "run", w.Runs()))
	return a.Run(ctx)
}
