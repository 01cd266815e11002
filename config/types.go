// Package config loads, validates and watches the simulator configuration.
package config

import (
	"fmt"
	"time"
)

// LogLevel represents logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// Valid reports whether the level is one of the known levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	}
	return false
}

// Exhaustion policies, mirrored by pool.Policy.
const (
	PolicyQuit   = "quit"
	PolicyIgnore = "ignore"
)

// Config is the root configuration
type Config struct {
	App        AppConfig        `yaml:"app" json:"app"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Pool       PoolConfig       `yaml:"pool" json:"pool"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
	Vehicle    VehicleConfig    `yaml:"vehicle" json:"vehicle"`
	Output     OutputConfig     `yaml:"output" json:"output"`
}

// AppConfig contains application identity
type AppConfig struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	// Seed for the random sources, 0 picks one from the clock
	Seed int64 `yaml:"seed" json:"seed"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level LogLevel `yaml:"level" json:"level"`

	// text or json
	Format string `yaml:"format" json:"format"`

	// stdout, stderr or a file path
	Output string `yaml:"output" json:"output"`

	Timestamps bool `yaml:"timestamps" json:"timestamps"`
	Caller     bool `yaml:"caller" json:"caller"`
}

// PoolConfig sizes the worker pool
type PoolConfig struct {
	Workers int `yaml:"workers" json:"workers"`

	// What happens when no worker is idle: quit or ignore
	Policy string `yaml:"policy" json:"policy"`

	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size"`
}

// SimulationConfig controls the simulated clock and the spawn schedule
type SimulationConfig struct {
	// Wall time of one simulated minute
	MinuteLength time.Duration `yaml:"minute_length" json:"minute_length"`
	MaxMinutes   int           `yaml:"max_minutes" json:"max_minutes"`

	// Vehicles spawned each minute are drawn from [SpawnMin, SpawnMax)
	SpawnMin int `yaml:"spawn_min" json:"spawn_min"`
	SpawnMax int `yaml:"spawn_max" json:"spawn_max"`

	// Minutes between status lines, 0 disables them
	SummaryEvery    int `yaml:"summary_every" json:"summary_every"`
	InitialVehicles int `yaml:"initial_vehicles" json:"initial_vehicles"`

	RefreshInterval     time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	MaxRoadsPerJunction int           `yaml:"max_roads_per_junction" json:"max_roads_per_junction"`
}

// VehicleConfig tunes vehicle actors
type VehicleConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval"`
	SpawnAttempts int           `yaml:"spawn_attempts" json:"spawn_attempts"`
}

// OutputConfig names the result artefacts
type OutputConfig struct {
	// Per-junction and per-road totals are written here when the run ends
	ResultsPath string `yaml:"results_path" json:"results_path"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "roadsim",
			Version: "1.0.0",
		},
		Log: LogConfig{
			Level:      LogLevelInfo,
			Format:     "text",
			Output:     "stderr",
			Timestamps: true,
		},
		Pool: PoolConfig{
			Workers:     4096,
			Policy:      PolicyQuit,
			MailboxSize: 1024,
		},
		Simulation: SimulationConfig{
			MinuteLength:        2 * time.Second,
			MaxMinutes:          10,
			SpawnMin:            100,
			SpawnMax:            200,
			SummaryEvery:        5,
			InitialVehicles:     1,
			RefreshInterval:     10 * time.Millisecond,
			MaxRoadsPerJunction: 50,
		},
		Vehicle: VehicleConfig{
			PollInterval:  50 * time.Millisecond,
			SpawnAttempts: 1000,
		},
		Output: OutputConfig{
			ResultsPath: "results",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}

	if !c.Log.Level.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}

	if c.Pool.Workers < 2 {
		// map and control need a slot each
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Pool.Workers)
	}
	if c.Pool.Policy != PolicyQuit && c.Pool.Policy != PolicyIgnore {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.Pool.Policy)
	}
	if c.Pool.MailboxSize <= 0 {
		return ErrInvalidMailboxSize
	}

	sim := c.Simulation
	if sim.MinuteLength <= 0 {
		return ErrInvalidMinuteLength
	}
	if sim.MaxMinutes <= 0 {
		return ErrInvalidMaxMinutes
	}
	if sim.SpawnMin < 0 || sim.SpawnMax < sim.SpawnMin {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidSpawnRange, sim.SpawnMin, sim.SpawnMax)
	}
	if sim.SummaryEvery < 0 {
		return ErrInvalidSummary
	}
	if sim.MaxRoadsPerJunction <= 0 {
		return ErrInvalidRoadLimit
	}

	if c.Vehicle.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.Output.ResultsPath == "" {
		return ErrInvalidResultsPath
	}

	return nil
}
