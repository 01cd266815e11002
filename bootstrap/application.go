package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/najoast/roadsim/config"
	"github.com/najoast/roadsim/pool"
	"github.com/najoast/roadsim/roadmap"
	"github.com/najoast/roadsim/sim"
)

// DefaultShutdownTimeout bounds the graceful stop after the run ends.
const DefaultShutdownTimeout = 30 * time.Second

// Options configures an Application.
type Options struct {
	Config *config.Config
	Graph  *roadmap.Graph
	Logger *log.Logger

	// ConfigFile is watched for changes when set. Loader reloads it and
	// defaults to config.NewLoader().
	ConfigFile string
	Loader     *config.Loader

	// HandleSignals stops the run on SIGINT or SIGTERM.
	HandleSignals bool

	// ShutdownTimeout bounds each service start and the graceful stop.
	// Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Application is one simulator run and the services around it.
type Application struct {
	cfg        *config.Config
	graph      *roadmap.Graph
	runID      string
	logger     *log.Logger
	lifecycle  *LifecycleManager
	sim        *sim.Simulation
	simService *SimulationService
	signals    bool
	timeout    time.Duration
}

// NewApplication builds the simulation and registers its services.
func NewApplication(opts Options) (*Application, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Graph == nil {
		return nil, &ApplicationError{Operation: "configure", Err: errors.New("no road map")}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	runID := uuid.NewString()
	logger := opts.Logger.With("run", runID[:8])

	s, err := sim.New(SimulationOptions(opts.Config, opts.Graph), logger)
	if err != nil {
		return nil, &ApplicationError{Operation: "configure", Service: ServiceSimulation, Err: err}
	}

	app := &Application{
		cfg:       opts.Config,
		graph:     opts.Graph,
		runID:     runID,
		logger:    logger,
		lifecycle: NewLifecycleManager(logger.With("component", "lifecycle")),
		sim:       s,
		signals:   opts.HandleSignals,
		timeout:   opts.ShutdownTimeout,
	}
	app.lifecycle.SetTimeout(app.timeout)

	app.simService = NewSimulationService(s, logger)
	if err := app.lifecycle.Register(app.simService); err != nil {
		return nil, err
	}

	if opts.ConfigFile != "" {
		loader := opts.Loader
		if loader == nil {
			loader = config.NewLoader()
		}
		w, err := config.NewWatcher(opts.ConfigFile, loader, logger)
		if err != nil {
			return nil, &ApplicationError{Operation: "configure", Service: ServiceConfigWatcher, Err: err}
		}
		// loggers derived before a level change keep their level, vehicles
		// spawned afterwards pick it up
		if err := app.lifecycle.Register(NewWatcherService(w, s, logger), ServiceSimulation); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// SimulationOptions maps the configuration onto the simulation's options.
func SimulationOptions(cfg *config.Config, g *roadmap.Graph) sim.Options {
	sc := cfg.Simulation
	return sim.Options{
		Graph: g,
		Pool: pool.Config{
			Workers:     cfg.Pool.Workers,
			Policy:      pool.Policy(cfg.Pool.Policy),
			MailboxSize: cfg.Pool.MailboxSize,
		},
		Map: sim.MapOptions{
			MinuteLength: sc.MinuteLength,
			Refresh:      sc.RefreshInterval,
		},
		Control: sim.ControlOptions{
			MinuteLength: sc.MinuteLength,
			SpawnMin:     sc.SpawnMin,
			SpawnMax:     sc.SpawnMax,
			MaxMinutes:   sc.MaxMinutes,
			Refresh:      sc.RefreshInterval,
		},
		Vehicle: sim.VehicleOptions{
			PollInterval:  cfg.Vehicle.PollInterval,
			SpawnAttempts: cfg.Vehicle.SpawnAttempts,
		},
		InitialVehicles: sc.InitialVehicles,
		SummaryEvery:    sc.SummaryEvery,
		ResultsPath:     cfg.Output.ResultsPath,
		Seed:            cfg.App.Seed,
	}
}

// RunID identifies this run in the logs.
func (app *Application) RunID() string { return app.runID }

// Simulation returns the underlying simulation.
func (app *Application) Simulation() *sim.Simulation { return app.sim }

// Lifecycle returns the lifecycle manager.
func (app *Application) Lifecycle() *LifecycleManager { return app.lifecycle }

// Run starts the services and blocks until the simulation finishes, a
// signal arrives or ctx is done, then stops everything. The simulation's
// own failure wins over a stop failure.
func (app *Application) Run(ctx context.Context) error {
	app.logger.Info("starting simulation",
		"junctions", app.graph.NumJunctions(),
		"roads", app.graph.NumRoads(),
		"lights", app.graph.NumLights(),
		"workers", app.cfg.Pool.Workers,
		"policy", app.cfg.Pool.Policy)

	if err := app.lifecycle.Start(ctx); err != nil {
		return err
	}

	var sigs chan os.Signal
	if app.signals {
		sigs = make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
	}

	select {
	case <-app.simService.Done():
	case sig := <-sigs:
		app.logger.Info("received signal, stopping", "signal", sig)
	case <-ctx.Done():
		app.logger.Info("context cancelled, stopping")
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.timeout)
	defer cancel()
	stopErr := app.lifecycle.Stop(stopCtx)

	if err := app.simService.Err(); err != nil {
		return &ApplicationError{Operation: "run", Service: ServiceSimulation, Err: err}
	}
	if stopErr != nil {
		return fmt.Errorf("shutdown: %w", stopErr)
	}
	return nil
}
