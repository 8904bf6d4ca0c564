// Package notification delivers notification requests produced by automation actions.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/models"
)

// ErrServiceStopped is returned by Send while the service is stopped.
var ErrServiceStopped = errors.New("notification service is not running")

// Sink delivers a fully populated notification to its channel.
type Sink interface {
	Deliver(ctx context.Context, notification models.Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, notification models.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, notification models.Notification) error {
	return f(ctx, notification)
}

type Service struct {
	logger  *slog.Logger
	sink    Sink
	running atomic.Bool

	mu       sync.RWMutex
	defaults config.NotificationConfig

	sent   atomic.Int64
	failed atomic.Int64
}

// NewService creates a service delivering to sink. A nil sink logs notifications.
func NewService(logger *slog.Logger, sink Sink, defaults config.NotificationConfig) *Service {
	logger = logger.With("module", "notification_service")

	if sink == nil {
		sink = NewLogSink(logger)
	}

	return &Service{
		logger:   logger,
		sink:     sink,
		defaults: defaults,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.running.Store(true)
	s.logger.DebugContext(ctx, "Notification service started")

	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.running.Store(false)
	s.logger.DebugContext(ctx, "Notification service stopped")

	return nil
}

func (s *Service) UpdateConfig(defaults config.NotificationConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defaults = defaults
}

// Send fills missing fields from the configured defaults and hands the notification to
// the sink. Delivery is fire-and-forget unless the sink fails synchronously.
func (s *Service) Send(ctx context.Context, notification models.Notification) error {
	if !s.running.Load() {
		return ErrServiceStopped
	}

	notification = s.withDefaults(notification)

	if err := s.sink.Deliver(ctx, notification); err != nil {
		s.failed.Add(1)
		s.logger.WarnContext(ctx, "Notification delivery failed", "type", notification.Type, "error", err)

		return fmt.Errorf("failed to deliver %s notification: %w", notification.Type, err)
	}

	s.sent.Add(1)

	return nil
}

// Counts returns how many notifications were delivered and how many failed.
func (s *Service) Counts() (sent, failed int64) {
	return s.sent.Load(), s.failed.Load()
}

func (s *Service) withDefaults(n models.Notification) models.Notification {
	s.mu.RLock()
	defaults := s.defaults
	s.mu.RUnlock()

	if n.Type == "" {
		n.Type = "automation"
	}

	if len(n.Recipients) == 0 {
		n.Recipients = append([]string(nil), defaults.Recipients...)
	}

	if n.Priority == "" {
		n.Priority = defaults.Priority
	}

	data := make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}

	if _, ok := data["channel"]; !ok && defaults.Channel != "" {
		data["channel"] = defaults.Channel
	}

	n.Data = data

	return n
}
