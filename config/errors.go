package config

import "errors"

// Validation errors
var (
	ErrInvalidAppName      = errors.New("invalid application name")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("invalid log format")
	ErrInvalidWorkers      = errors.New("invalid worker count")
	ErrInvalidPolicy       = errors.New("invalid exhaustion policy")
	ErrInvalidMailboxSize  = errors.New("invalid mailbox size")
	ErrInvalidMinuteLength = errors.New("invalid minute length")
	ErrInvalidMaxMinutes   = errors.New("invalid simulation length")
	ErrInvalidSpawnRange   = errors.New("invalid spawn range")
	ErrInvalidSummary      = errors.New("invalid summary cadence")
	ErrInvalidRoadLimit    = errors.New("invalid roads per junction limit")
	ErrInvalidPollInterval = errors.New("invalid poll interval")
	ErrInvalidResultsPath  = errors.New("invalid results path")
)

// Loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrConfigValidateError = errors.New("configuration validation error")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
