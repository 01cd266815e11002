// Package bootstrap assembles the simulator from configuration and runs
// its services in dependency order.
package bootstrap

import (
	"context"
	"fmt"
	"time"
)

// Service is something the lifecycle manager starts and stops.
type Service interface {
	Name() string

	// Start must not block for the lifetime of the service.
	Start(ctx context.Context) error

	Stop(ctx context.Context) error

	Health(ctx context.Context) (HealthStatus, error)
}

// HealthStatus represents the health status of a service
type HealthStatus struct {
	State     HealthState    `json:"state"`
	Message   string         `json:"message,omitempty"`
	LastCheck time.Time      `json:"last_check,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// HealthState represents the health state of a service
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthStarting  HealthState = "starting"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthStopping  HealthState = "stopping"
	HealthStopped   HealthState = "stopped"
)

// EventType names a lifecycle transition.
type EventType string

const (
	EventRegistered    EventType = "service.registered"
	EventStarting      EventType = "service.starting"
	EventStarted       EventType = "service.started"
	EventStartFailed   EventType = "service.start_failed"
	EventStopping      EventType = "service.stopping"
	EventStopped       EventType = "service.stopped"
	EventStopFailed    EventType = "service.stop_failed"
	EventLifecycleUp   EventType = "lifecycle.started"
	EventLifecycleDown EventType = "lifecycle.stopped"
)

// LifecycleEvent represents an event in the service lifecycle
type LifecycleEvent struct {
	Type      EventType      `json:"type"`
	Service   string         `json:"service,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     error          `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ApplicationError represents an error that occurred during application lifecycle
type ApplicationError struct {
	Operation string
	Service   string
	Err       error
}

func (e *ApplicationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s failed for service %s: %v", e.Operation, e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
