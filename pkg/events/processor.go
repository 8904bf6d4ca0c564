// Package events counts the automation events observed by the engine.
package events

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dukex/operion-automation/pkg/metrics"
	"github.com/dukex/operion-automation/pkg/models"
)

const topEventTypesLimit = 10

type Processor struct {
	logger   *slog.Logger
	recorder metrics.Recorder
	running  atomic.Bool

	mu     sync.Mutex
	counts map[string]int64
	total  int64
}

func NewProcessor(logger *slog.Logger, recorder metrics.Recorder) *Processor {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Processor{
		logger:   logger.With("module", "event_processor"),
		recorder: recorder,
		counts:   make(map[string]int64),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.running.Store(true)
	p.logger.DebugContext(ctx, "Event processor started")

	return nil
}

func (p *Processor) Stop(ctx context.Context) error {
	p.running.Store(false)
	p.logger.DebugContext(ctx, "Event processor stopped")

	return nil
}

// ProcessEvent counts event by type. It does nothing while stopped.
func (p *Processor) ProcessEvent(ctx context.Context, event models.AutomationEvent) {
	if !p.running.Load() {
		return
	}

	p.mu.Lock()
	p.counts[event.Type]++
	p.total++
	p.mu.Unlock()

	p.recorder.ObserveEvent(event.Type)
	p.logger.DebugContext(ctx, "Event observed", "event_id", event.ID, "event_type", event.Type)
}

// Metrics returns the total count and the ten most frequent event types.
func (p *Processor) Metrics() models.EventMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	top := make([]models.EventTypeCount, 0, len(p.counts))
	for eventType, count := range p.counts {
		top = append(top, models.EventTypeCount{Type: eventType, Count: count})
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}

		return top[i].Type < top[j].Type
	})

	if len(top) > topEventTypesLimit {
		top = top[:topEventTypesLimit]
	}

	return models.EventMetrics{TotalEvents: p.total, TopEventTypes: top}
}
