// Package config provides the automation engine configuration and its loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config controls execution limits, retries, logging, metrics and notification defaults.
type Config struct {
	MaxConcurrentExecutions int                `json:"max_concurrent_executions" yaml:"max_concurrent_executions" validate:"min=1"`
	DefaultTimeout          time.Duration      `json:"default_timeout"           yaml:"default_timeout"           validate:"gt=0"`
	Retry                   RetryPolicy        `json:"retry"                     yaml:"retry"`
	Logging                 LoggingConfig      `json:"logging"                   yaml:"logging"`
	Metrics                 MetricsConfig      `json:"metrics"                   yaml:"metrics"`
	Notifications           NotificationConfig `json:"notifications"             yaml:"notifications"`
	Scheduling              SchedulingConfig   `json:"scheduling"                yaml:"scheduling"`
	Thresholds              Thresholds         `json:"thresholds"                yaml:"thresholds"`
}

// RetryPolicy applies to every action and workflow step invocation.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries"        yaml:"max_retries"        validate:"min=0,max=20"`
	Delay             time.Duration `json:"delay"              yaml:"delay"              validate:"min=0"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier" validate:"gte=1"`
}

// LoggingConfig controls log verbosity and execution log retention.
type LoggingConfig struct {
	Level         string `json:"level"           yaml:"level"           validate:"oneof=debug info warn error"`
	RetentionDays int    `json:"retention_days"  yaml:"retention_days"  validate:"min=0"`
	MaxLogEntries int    `json:"max_log_entries" yaml:"max_log_entries" validate:"min=0"`
	HistorySize   int    `json:"history_size"    yaml:"history_size"    validate:"min=0"`
}

// MetricsConfig controls metrics sampling.
type MetricsConfig struct {
	SamplingInterval time.Duration `json:"sampling_interval" yaml:"sampling_interval" validate:"min=0"`
}

// NotificationConfig holds defaults applied to notifications missing a field.
type NotificationConfig struct {
	Channel    string   `json:"channel"    yaml:"channel"`
	Recipients []string `json:"recipients" yaml:"recipients"`
	Priority   string   `json:"priority"   yaml:"priority"`
}

// SchedulingConfig configures the smart scheduling service.
type SchedulingConfig struct {
	Enabled           bool   `json:"enabled"            yaml:"enabled"`
	WorkingHoursStart int    `json:"working_hours_start" yaml:"working_hours_start" validate:"min=0,max=23"`
	WorkingHoursEnd   int    `json:"working_hours_end"   yaml:"working_hours_end"   validate:"min=0,max=24"`
	TimeZone          string `json:"time_zone"          yaml:"time_zone"`
	OptimizationCron  string `json:"optimization_cron"  yaml:"optimization_cron"`
}

// Thresholds drive the generated insights.
type Thresholds struct {
	SlowRule      time.Duration `json:"slow_rule"      yaml:"slow_rule"      validate:"min=0"`
	LongWorkflow  time.Duration `json:"long_workflow"  yaml:"long_workflow"  validate:"min=0"`
	SlowExecution time.Duration `json:"slow_execution" yaml:"slow_execution" validate:"min=0"`
	ErrorRate     float64       `json:"error_rate"     yaml:"error_rate"     validate:"min=0,max=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxConcurrentExecutions: 10,
		DefaultTimeout:          30 * time.Second,
		Retry: RetryPolicy{
			MaxRetries:        3,
			Delay:             time.Second,
			BackoffMultiplier: 2,
		},
		Logging: LoggingConfig{
			Level:         "info",
			RetentionDays: 30,
			MaxLogEntries: 100,
			HistorySize:   100,
		},
		Metrics: MetricsConfig{
			SamplingInterval: time.Minute,
		},
		Notifications: NotificationConfig{
			Channel:  "console",
			Priority: "normal",
		},
		Scheduling: SchedulingConfig{
			Enabled:           true,
			WorkingHoursStart: 9,
			WorkingHoursEnd:   17,
			TimeZone:          "UTC",
			OptimizationCron:  "0 * * * *",
		},
		Thresholds: Thresholds{
			SlowRule:      time.Second,
			LongWorkflow:  30 * time.Second,
			SlowExecution: 5 * time.Second,
			ErrorRate:     0.1,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Scheduling.WorkingHoursEnd <= c.Scheduling.WorkingHoursStart {
		return fmt.Errorf("%w: working hours end (%d) must be after start (%d)",
			ErrInvalidConfig, c.Scheduling.WorkingHoursEnd, c.Scheduling.WorkingHoursStart)
	}

	return nil
}

// Merge overlays the non-zero fields of partial onto base and validates the result.
func Merge(base, partial Config) (Config, error) {
	merged := base

	// Recipients is the only slice: mergo would append-or-replace, replace it explicitly.
	if len(partial.Notifications.Recipients) > 0 {
		merged.Notifications.Recipients = append([]string(nil), partial.Notifications.Recipients...)
		partial.Notifications.Recipients = nil
	}

	if err := mergo.Merge(&merged, partial, mergo.WithOverride); err != nil {
		return base, fmt.Errorf("failed to merge configuration: %w", err)
	}

	if err := merged.Validate(); err != nil {
		return base, err
	}

	return merged, nil
}

// Load reads a YAML configuration file and overlays it onto the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return Merge(Default(), partial)
}

// LoadOrDefault loads the file at path, falling back to the defaults when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	return Load(path)
}
