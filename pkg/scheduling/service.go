// Package scheduling holds the smart-scheduling configuration and exposes an optimization
// hook. It computes schedules but runs no timers; callers drive it.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/robfig/cron/v3"
)

// ErrSchedulingDisabled is returned by operations that need scheduling enabled.
var ErrSchedulingDisabled = errors.New("smart scheduling is disabled")

// Optimizer is the hook run by Optimize, typically the engine-wide optimization pass.
type Optimizer func(ctx context.Context) (models.OptimizationReport, error)

type Service struct {
	logger  *slog.Logger
	running atomic.Bool

	mu        sync.RWMutex
	cfg       config.SchedulingConfig
	schedule  cron.Schedule
	location  *time.Location
	optimizer Optimizer
	lastRun   time.Time
}

func NewService(logger *slog.Logger, cfg config.SchedulingConfig) (*Service, error) {
	s := &Service{logger: logger.With("module", "scheduling_service")}

	if err := s.UpdateConfig(cfg); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.running.Store(true)
	s.logger.DebugContext(ctx, "Scheduling service started")

	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.running.Store(false)
	s.logger.DebugContext(ctx, "Scheduling service stopped")

	return nil
}

// UpdateConfig parses the optimization cron expression and time zone of cfg. The previous
// configuration stays in place when either is invalid.
func (s *Service) UpdateConfig(cfg config.SchedulingConfig) error {
	expr := cfg.OptimizationCron
	if expr == "" {
		expr = config.Default().Scheduling.OptimizationCron
	}

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("%w: optimization cron %q: %w", config.ErrInvalidConfig, expr, err)
	}

	zone := cfg.TimeZone
	if zone == "" {
		zone = "UTC"
	}

	location, err := time.LoadLocation(zone)
	if err != nil {
		return fmt.Errorf("%w: time zone %q: %w", config.ErrInvalidConfig, zone, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.schedule = schedule
	s.location = location

	return nil
}

func (s *Service) Config() config.SchedulingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg
}

// SetOptimizer installs the hook Optimize runs.
func (s *Service) SetOptimizer(optimizer Optimizer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.optimizer = optimizer
}

// NextOptimization returns when the next optimization pass is due after t.
func (s *Service) NextOptimization(t time.Time) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.cfg.Enabled {
		return time.Time{}, ErrSchedulingDisabled
	}

	return s.schedule.Next(t.In(s.location)), nil
}

// IsWithinWorkingHours reports whether t falls inside the configured working hours.
func (s *Service) IsWithinWorkingHours(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hour := t.In(s.location).Hour()

	return hour >= s.cfg.WorkingHoursStart && hour < s.cfg.WorkingHoursEnd
}

// SuggestSlot returns the earliest time at or after t inside working hours.
func (s *Service) SuggestSlot(t time.Time) time.Time {
	if s.IsWithinWorkingHours(t) {
		return t
	}

	s.mu.RLock()
	start := s.cfg.WorkingHoursStart
	local := t.In(s.location)
	s.mu.RUnlock()

	slot := time.Date(local.Year(), local.Month(), local.Day(), start, 0, 0, 0, local.Location())
	if !slot.After(local) {
		slot = slot.AddDate(0, 0, 1)
	}

	return slot
}

// LastOptimization returns when Optimize last ran the hook successfully.
func (s *Service) LastOptimization() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastRun
}

// Optimize runs the optimizer hook. Without a hook it returns an empty report.
func (s *Service) Optimize(ctx context.Context) (models.OptimizationReport, error) {
	if !s.running.Load() {
		return models.OptimizationReport{Recommendations: []string{}}, nil
	}

	s.mu.RLock()
	enabled := s.cfg.Enabled
	optimizer := s.optimizer
	s.mu.RUnlock()

	if !enabled {
		return models.OptimizationReport{}, ErrSchedulingDisabled
	}

	if optimizer == nil {
		return models.OptimizationReport{Recommendations: []string{}}, nil
	}

	report, err := optimizer(ctx)
	if err != nil {
		return models.OptimizationReport{}, fmt.Errorf("optimization hook failed: %w", err)
	}

	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Scheduled optimization ran", "optimizations", report.Optimizations)

	return report, nil
}
