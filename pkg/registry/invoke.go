package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/operion-automation/pkg/config"
	"github.com/dukex/operion-automation/pkg/models"
	"github.com/dukex/operion-automation/pkg/protocol"
)

// ErrActionTimeout is returned when an action does not finish within the policy timeout.
var ErrActionTimeout = errors.New("action timed out")

// Policy bounds a single action invocation.
type Policy struct {
	Timeout           time.Duration
	MaxRetries        int
	Delay             time.Duration
	BackoffMultiplier float64
}

// PolicyFromConfig derives the invocation policy from the engine configuration.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		Timeout:           cfg.DefaultTimeout,
		MaxRetries:        cfg.Retry.MaxRetries,
		Delay:             cfg.Retry.Delay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Delay
	exp.Multiplier = p.BackoffMultiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	if exp.InitialInterval <= 0 {
		exp.InitialInterval = time.Millisecond
	}

	if exp.Multiplier < 1 {
		exp.Multiplier = 1
	}

	exp.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Invoke creates the action for spec and runs it under policy: every attempt is bounded by
// the timeout, failures are retried with exponential backoff and panics become errors.
func (r *Registry) Invoke(
	ctx context.Context,
	spec models.Action,
	input protocol.ActionInput,
	policy Policy,
	logger *slog.Logger,
) (map[string]any, error) {
	action, err := r.CreateAction(spec.Type, spec.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create action %s: %w", spec.Type, err)
	}

	logger = logger.With("action_type", spec.Type)

	var (
		output  map[string]any
		attempt int
	)

	operation := func() error {
		attempt++

		out, err := runAttempt(ctx, action, input, policy.Timeout, logger)
		if err != nil {
			logger.WarnContext(ctx, "Action attempt failed", "attempt", attempt, "error", err)

			return err
		}

		output = out

		return nil
	}

	if err := backoff.Retry(operation, policy.backOff(ctx)); err != nil {
		return nil, err
	}

	return output, nil
}

type attemptResult struct {
	output map[string]any
	err    error
}

func runAttempt(
	ctx context.Context,
	action protocol.Action,
	input protocol.ActionInput,
	timeout time.Duration,
	logger *slog.Logger,
) (map[string]any, error) {
	attemptCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	done := make(chan attemptResult, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- attemptResult{err: fmt.Errorf("action panicked: %v", rec)}
			}
		}()

		out, err := action.Execute(attemptCtx, input, logger)
		done <- attemptResult{output: out, err: err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrActionTimeout, timeout)
		}

		return nil, attemptCtx.Err()
	}
}
