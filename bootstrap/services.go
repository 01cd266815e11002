package bootstrap

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/najoast/roadsim/config"
	"github.com/najoast/roadsim/logging"
	"github.com/najoast/roadsim/sim"
)

// Service names
const (
	ServiceSimulation    = "simulation"
	ServiceConfigWatcher = "config-watcher"
)

// SimulationService runs a simulation in the background.
type SimulationService struct {
	sim    *sim.Simulation
	logger *log.Logger

	mu     sync.Mutex
	state  HealthState
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimulationService wraps s.
func NewSimulationService(s *sim.Simulation, logger *log.Logger) *SimulationService {
	return &SimulationService{
		sim:    s,
		logger: logger,
		state:  HealthUnknown,
		done:   make(chan struct{}),
	}
}

func (s *SimulationService) Name() string { return ServiceSimulation }

// Start launches the run. The run outlives ctx, which only bounds startup.
func (s *SimulationService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.cancel = cancel
	s.state = HealthHealthy
	s.mu.Unlock()

	go func() {
		err := s.sim.Run(runCtx)

		snap, minutes := s.sim.Summary()
		s.logger.Debug("simulation returned", "minutes", minutes, "spawned", snap.Spawned, "err", err)

		s.mu.Lock()
		s.err = err
		if err != nil {
			s.state = HealthUnhealthy
		} else {
			s.state = HealthStopped
		}
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

// Stop asks the pool to stop and waits for the run to return.
func (s *SimulationService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == HealthHealthy {
		s.state = HealthStopping
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	err := s.sim.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
		// the pool did not drain in time, abandon it
		cancel()
		<-s.done
	}
	cancel()
	return err
}

func (s *SimulationService) Health(ctx context.Context) (HealthStatus, error) {
	s.mu.Lock()
	state, err := s.state, s.err
	s.mu.Unlock()

	st := s.sim.PoolStats()
	status := HealthStatus{
		State: state,
		Data: map[string]any{
			"active_workers": st.Active,
			"peak_workers":   st.PeakActive,
			"activations":    st.Activations,
			"blocked":        st.Blocked,
		},
	}
	if err != nil {
		status.Message = err.Error()
	}
	return status, nil
}

// Done is closed when the run returns.
func (s *SimulationService) Done() <-chan struct{} {
	return s.done
}

// Err is the run's result once Done is closed.
func (s *SimulationService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// WatcherService hot-reloads the parts of the configuration a running
// simulation can take: the log level and the status line cadence.
type WatcherService struct {
	watcher *config.Watcher
	logger  *log.Logger
	sim     *sim.Simulation
}

// NewWatcherService watches w and applies changes to s and logger.
func NewWatcherService(w *config.Watcher, s *sim.Simulation, logger *log.Logger) *WatcherService {
	ws := &WatcherService{watcher: w, logger: logger, sim: s}
	w.OnChange(ws.apply)
	return ws
}

func (ws *WatcherService) Name() string { return ServiceConfigWatcher }

func (ws *WatcherService) Start(ctx context.Context) error {
	return ws.watcher.Start()
}

func (ws *WatcherService) Stop(ctx context.Context) error {
	return ws.watcher.Stop()
}

func (ws *WatcherService) Health(ctx context.Context) (HealthStatus, error) {
	return HealthStatus{State: HealthHealthy}, nil
}

func (ws *WatcherService) apply(oldConfig, newConfig *config.Config) {
	if oldConfig.Log.Level != newConfig.Log.Level {
		if err := logging.SetLevel(ws.logger, newConfig.Log.Level); err != nil {
			ws.logger.Warn("log level not changed", "err", err)
		} else {
			ws.logger.Info("log level changed", "level", newConfig.Log.Level)
		}
	}
	if oldConfig.Simulation.SummaryEvery != newConfig.Simulation.SummaryEvery {
		ws.sim.SetSummaryEvery(newConfig.Simulation.SummaryEvery)
		ws.logger.Info("status cadence changed", "minutes", newConfig.Simulation.SummaryEvery)
	}
	if oldConfig.Pool != newConfig.Pool || oldConfig.Simulation.MinuteLength != newConfig.Simulation.MinuteLength ||
		oldConfig.Simulation.MaxMinutes != newConfig.Simulation.MaxMinutes {
		ws.logger.Warn("pool and clock settings apply on the next run")
	}
}
