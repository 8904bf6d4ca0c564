package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
	"golang.org/x/sync/semaphore"
)

// Bridge consumes notifications from a watermill subscriber and dispatches them
// to a protocol.Subscriber. Notifications sharing a key are dispatched one at a
// time in arrival order. At most maxConcurrent keys are dispatched at once.
type Bridge struct {
	subscriber message.Subscriber
	logger     *slog.Logger

	semMu         sync.Mutex
	sem           *semaphore.Weighted
	maxConcurrent int64

	lanesMu sync.Mutex
	lanes   map[string][]*message.Message
}

func NewBridge(sub message.Subscriber, logger *slog.Logger, maxConcurrent int) *Bridge {
	b := &Bridge{
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
		lanes:      make(map[string][]*message.Message),
	}
	b.SetMaxConcurrent(maxConcurrent)

	return b
}

// SetMaxConcurrent changes the number of keys dispatched at once. Lanes already
// running keep their slot until they drain.
func (b *Bridge) SetMaxConcurrent(maxConcurrent int) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	b.semMu.Lock()
	defer b.semMu.Unlock()

	if b.sem != nil && b.maxConcurrent == int64(maxConcurrent) {
		return
	}

	b.maxConcurrent = int64(maxConcurrent)
	b.sem = semaphore.NewWeighted(b.maxConcurrent)
}

func (b *Bridge) MaxConcurrent() int {
	b.semMu.Lock()
	defer b.semMu.Unlock()

	return int(b.maxConcurrent)
}

func (b *Bridge) slots() *semaphore.Weighted {
	b.semMu.Lock()
	defer b.semMu.Unlock()

	return b.sem
}

// Run blocks until ctx is cancelled or the subscription closes, then waits
// for in-flight dispatches to finish.
func (b *Bridge) Run(ctx context.Context, target protocol.Subscriber) error {
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}

	b.logger.InfoContext(ctx, "Bridge subscribed", "topic", Topic, "max_concurrent", b.MaxConcurrent())

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			key := laneKey(msg)
			if b.enqueue(key, msg) {
				continue
			}

			sem := b.slots()
			if err := sem.Acquire(ctx, 1); err != nil {
				b.abandon(key)

				return nil
			}

			wg.Add(1)

			go func() {
				defer wg.Done()
				defer sem.Release(1)

				b.drain(ctx, key, target)
			}()
		}
	}
}

// laneKey is the partition key set by Publisher. Messages without one get a lane
// of their own.
func laneKey(msg *message.Message) string {
	if key := msg.Metadata.Get(KeyMetadataKey); key != "" {
		return key
	}

	return "msg:" + msg.UUID
}

// enqueue appends msg to its lane and reports whether a worker already owns the lane.
func (b *Bridge) enqueue(key string, msg *message.Message) bool {
	b.lanesMu.Lock()
	defer b.lanesMu.Unlock()

	queue, busy := b.lanes[key]
	b.lanes[key] = append(queue, msg)

	return busy
}

// abandon nacks whatever is queued on a lane that never got a worker.
func (b *Bridge) abandon(key string) {
	b.lanesMu.Lock()
	queue := b.lanes[key]
	delete(b.lanes, key)
	b.lanesMu.Unlock()

	for _, msg := range queue {
		msg.Nack()
	}
}

// drain handles the lane's messages in order and removes the lane once it is empty.
func (b *Bridge) drain(ctx context.Context, key string, target protocol.Subscriber) {
	for {
		b.lanesMu.Lock()

		queue := b.lanes[key]
		if len(queue) == 0 {
			delete(b.lanes, key)
			b.lanesMu.Unlock()

			return
		}

		msg := queue[0]
		b.lanes[key] = queue[1:]
		b.lanesMu.Unlock()

		b.handle(ctx, msg, target)
	}
}

func (b *Bridge) handle(ctx context.Context, msg *message.Message, target protocol.Subscriber) {
	logger := b.logger.With("message_id", msg.UUID, "kind", msg.Metadata.Get(KindMetadataKey))

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Subscriber panicked", "panic", r)
			msg.Ack()
		}
	}()

	var n Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		logger.ErrorContext(ctx, "Dropping undecodable notification", "error", err)
		msg.Ack()

		return
	}

	if err := Dispatch(ctx, n, target); err != nil {
		logger.ErrorContext(ctx, "Dropping invalid notification", "error", err)
		msg.Ack()

		return
	}

	msg.Ack()
}

// Dispatch decodes a notification payload and calls the matching Subscriber method.
func Dispatch(ctx context.Context, n Notification, target protocol.Subscriber) error {
	if err := n.Validate(); err != nil {
		return err
	}

	switch n.Kind {
	case KindTaskCreated, KindTaskCompleted:
		var task models.Task
		if err := decode(n, &task); err != nil {
			return err
		}

		if n.Kind == KindTaskCreated {
			target.TaskCreated(ctx, task)
		} else {
			target.TaskCompleted(ctx, task)
		}
	case KindTaskUpdated:
		var update taskUpdate
		if err := decode(n, &update); err != nil {
			return err
		}

		target.TaskUpdated(ctx, n.TaskID, update.Changes)
	case KindLearningInsight:
		var insight models.LearningInsight
		if err := decode(n, &insight); err != nil {
			return err
		}

		target.LearningInsightGenerated(ctx, insight)
	case KindPriorityChanged:
		var change models.PriorityChange
		if err := decode(n, &change); err != nil {
			return err
		}

		target.PriorityChanged(ctx, n.TaskID, change)
	default:
		return errors.Join(ErrUnknownKind, fmt.Errorf("kind %q", n.Kind))
	}

	return nil
}

func decode(n Notification, into any) error {
	if err := json.Unmarshal(n.Payload, into); err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrInvalidEnvelope, n.Kind, err)
	}

	return nil
}
