package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Lifecycle errors
var (
	ErrAlreadyStarted     = errors.New("lifecycle already started")
	ErrCircularDependency = errors.New("circular dependency detected")
)

// LifecycleManager starts services in dependency order and stops them in
// reverse.
type LifecycleManager struct {
	// runMu serialises Start and Stop
	runMu sync.Mutex

	mu           sync.RWMutex
	services     map[string]Service
	dependencies map[string][]string
	startOrder   []string
	started      bool
	listeners    []func(LifecycleEvent)

	events  chan LifecycleEvent
	timeout time.Duration
	logger  *log.Logger
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger *log.Logger) *LifecycleManager {
	if logger == nil {
		logger = log.Default()
	}
	return &LifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		events:       make(chan LifecycleEvent, 100),
		timeout:      30 * time.Second,
		logger:       logger,
	}
}

// SetTimeout bounds each Start and Stop call.
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.timeout = timeout
}

// Register adds a service that starts after deps.
func (lm *LifecycleManager) Register(service Service, deps ...string) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}
	name := service.Name()
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}

	lm.mu.Lock()
	if lm.started {
		lm.mu.Unlock()
		return fmt.Errorf("cannot register service %s: %w", name, ErrAlreadyStarted)
	}
	if _, exists := lm.services[name]; exists {
		lm.mu.Unlock()
		return fmt.Errorf("service %s is already registered", name)
	}
	lm.services[name] = service
	lm.dependencies[name] = append([]string(nil), deps...)
	lm.mu.Unlock()

	lm.emit(LifecycleEvent{Type: EventRegistered, Service: name, Data: map[string]any{"dependencies": deps}})
	return nil
}

// Start starts every service in dependency order. If one fails, the
// services already started are stopped again.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.runMu.Lock()
	defer lm.runMu.Unlock()

	lm.mu.Lock()
	if lm.started {
		lm.mu.Unlock()
		return ErrAlreadyStarted
	}
	order, err := lm.calculateStartOrder()
	if err != nil {
		lm.mu.Unlock()
		return &ApplicationError{Operation: "start", Err: err}
	}
	lm.started = true
	lm.startOrder = nil
	timeout := lm.timeout
	lm.mu.Unlock()

	for _, name := range order {
		service := lm.service(name)
		lm.emit(LifecycleEvent{Type: EventStarting, Service: name})

		startCtx, cancel := context.WithTimeout(ctx, timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.emit(LifecycleEvent{Type: EventStartFailed, Service: name, Error: err})
			_ = lm.stopStarted(context.WithoutCancel(ctx))
			return &ApplicationError{Operation: "start", Service: name, Err: err}
		}

		lm.mu.Lock()
		lm.startOrder = append(lm.startOrder, name)
		lm.mu.Unlock()
		lm.emit(LifecycleEvent{Type: EventStarted, Service: name})
	}

	lm.emit(LifecycleEvent{Type: EventLifecycleUp, Data: map[string]any{"order": order}})
	return nil
}

// Stop stops the started services in reverse start order and returns the
// first failure. Stopping an idle manager is a no-op.
func (lm *LifecycleManager) Stop(ctx context.Context) error {
	lm.runMu.Lock()
	defer lm.runMu.Unlock()
	return lm.stopStarted(ctx)
}

func (lm *LifecycleManager) stopStarted(ctx context.Context) error {
	lm.mu.Lock()
	if !lm.started {
		lm.mu.Unlock()
		return nil
	}
	order := lm.startOrder
	timeout := lm.timeout
	lm.mu.Unlock()

	var first error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		lm.emit(LifecycleEvent{Type: EventStopping, Service: name})

		stopCtx, cancel := context.WithTimeout(ctx, timeout)
		err := lm.service(name).Stop(stopCtx)
		cancel()

		if err != nil {
			lm.emit(LifecycleEvent{Type: EventStopFailed, Service: name, Error: err})
			if first == nil {
				first = &ApplicationError{Operation: "stop", Service: name, Err: err}
			}
			continue
		}
		lm.emit(LifecycleEvent{Type: EventStopped, Service: name})
	}

	lm.mu.Lock()
	lm.started = false
	lm.startOrder = nil
	lm.mu.Unlock()

	lm.emit(LifecycleEvent{Type: EventLifecycleDown})
	return first
}

// Health collects the status of every registered service.
func (lm *LifecycleManager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mu.RLock()
	services := make(map[string]Service, len(lm.services))
	for name, s := range lm.services {
		services[name] = s
	}
	lm.mu.RUnlock()

	health := make(map[string]HealthStatus, len(services))
	for name, service := range services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		if status.LastCheck.IsZero() {
			status.LastCheck = time.Now()
		}
		health[name] = status
	}
	return health
}

// Services returns all registered service names, sorted.
func (lm *LifecycleManager) Services() []string {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Events returns a buffered feed of lifecycle events. Events are dropped
// when nobody drains it.
func (lm *LifecycleManager) Events() <-chan LifecycleEvent {
	return lm.events
}

// AddListener registers a callback invoked synchronously for every event.
func (lm *LifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.listeners = append(lm.listeners, listener)
}

func (lm *LifecycleManager) service(name string) Service {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.services[name]
}

// calculateStartOrder is Kahn's algorithm; ties are broken by name so the
// order is stable. Callers hold mu.
func (lm *LifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	dependents := make(map[string][]string, len(lm.services))

	for name := range lm.services {
		inDegree[name] = 0
	}
	for name, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, name)
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		next := dependents[current]
		sort.Strings(next)
		for _, d := range next {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) != len(lm.services) {
		return nil, ErrCircularDependency
	}
	return order, nil
}

func (lm *LifecycleManager) emit(event LifecycleEvent) {
	event.Timestamp = time.Now()

	if event.Error != nil {
		lm.logger.Warn(string(event.Type), "service", event.Service, "err", event.Error)
	} else {
		lm.logger.Debug(string(event.Type), "service", event.Service)
	}

	select {
	case lm.events <- event:
	default:
	}

	lm.mu.RLock()
	listeners := make([]func(LifecycleEvent), len(lm.listeners))
	copy(listeners, lm.listeners)
	lm.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Error("lifecycle listener panicked", "panic", r)
				}
			}()
			l(event)
		}()
	}
}
