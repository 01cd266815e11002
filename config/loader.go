package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(filename string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported config file format: %s", filepath.Ext(filename))
}

// Loader builds a Config from defaults, an optional file and the environment.
type Loader struct {
	searchPaths   []string
	envPrefix     string
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	paths := []string{".", "./config", "/etc/roadsim"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".roadsim"))
	}
	return &Loader{
		searchPaths:   paths,
		envPrefix:     "ROADSIM",
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig replaces the values missing fields fall back to.
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads the named file, or searches for one when filename is empty.
// A missing file during the search is not an error: defaults and the
// environment still apply.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename != "" {
		return l.LoadFromFile(filename)
	}
	return l.AutoLoad()
}

// LoadFromFile loads configuration from a file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return l.LoadFromReader(f, format)
}

// LoadFromReader loads configuration from a reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(config)
}

// AutoLoad searches the configured paths for a config file
func (l *Loader) AutoLoad() (*Config, error) {
	filename, _, err := l.findConfigFile()
	if err == nil {
		return l.LoadFromFile(filename)
	}

	return l.finish(l.defaults())
}

func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigValidateError, err)
	}
	return config, nil
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	c := *l.defaultConfig
	return &c
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, ConfigFormat, error) {
	filenames := []string{
		"roadsim.yaml", "roadsim.yml", "roadsim.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err != nil {
				continue
			}
			format, err := FormatOf(fullPath)
			if err != nil {
				continue
			}
			return fullPath, format, nil
		}
	}

	return "", "", ErrConfigFileNotFound
}

// parseConfig decodes data on top of the defaults, so absent keys keep
// their default values.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaults()

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, config)
	case FormatJSON:
		err = json.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParseError, err)
	}

	return config, nil
}

// loadFromEnv applies PREFIX_* overrides.
func (l *Loader) loadFromEnv(config *Config) error {
	overrides := map[string]func(string) error{
		"APP_NAME":              setString(&config.App.Name),
		"SEED":                  setInt64(&config.App.Seed),
		"LOG_LEVEL":             func(v string) error { config.Log.Level = LogLevel(strings.ToLower(v)); return nil },
		"LOG_FORMAT":            setString(&config.Log.Format),
		"LOG_OUTPUT":            setString(&config.Log.Output),
		"POOL_WORKERS":          setInt(&config.Pool.Workers),
		"POOL_POLICY":           setString(&config.Pool.Policy),
		"SIM_MINUTE_LENGTH":     setDuration(&config.Simulation.MinuteLength),
		"SIM_MAX_MINUTES":       setInt(&config.Simulation.MaxMinutes),
		"SIM_SPAWN_MIN":         setInt(&config.Simulation.SpawnMin),
		"SIM_SPAWN_MAX":         setInt(&config.Simulation.SpawnMax),
		"SIM_SUMMARY_EVERY":     setInt(&config.Simulation.SummaryEvery),
		"SIM_INITIAL_VEHICLES":  setInt(&config.Simulation.InitialVehicles),
		"VEHICLE_POLL_INTERVAL": setDuration(&config.Vehicle.PollInterval),
		"OUTPUT_RESULTS":        setString(&config.Output.ResultsPath),
	}

	for key, set := range overrides {
		name := l.envPrefix + "_" + key
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		if err := set(value); err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrEnvironmentVarError, name, value, err)
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setInt64(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
