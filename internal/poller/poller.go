// Package poller drives a transcription job from submission to a terminal
// state by re-checking engine status with exponential backoff. The loop is an
// explicit state machine: cancellation is a context, not a flag a callback
// chain has to remember to consult.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/reson/transcription-service/internal/config"
	"github.com/reson/transcription-service/internal/engine"
)

// StatusClient is the slice of the engine client the poller needs.
type StatusClient interface {
	Status(ctx context.Context, actualJobName string) (*engine.Job, error)
}

// Callbacks notify the caller as the poll progresses. Any of them may be nil.
type Callbacks struct {
	// OnUpdate fires at the first check and every StatusUpdateInterval checks
	// while the job is still queued or in progress.
	OnUpdate func(status engine.Status, attempt int)
	// OnComplete fires exactly once when the engine reports COMPLETED.
	OnComplete func(job *engine.Job)
	// OnError fires exactly once when polling ends without completion:
	// engine FAILED, timeout, exhausted transport retries, or unknown status.
	OnError func(err error)
}

// Poller polls one job at a time. Pollers for different jobs are fully
// independent; a Poller holds no per-job mutable state, so one instance may be
// shared across concurrent Poll calls.
type Poller struct {
	client StatusClient
	cfg    config.Polling

	// sleep is injectable so tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Poller.
func New(client StatusClient, cfg config.Polling) *Poller {
	return &Poller{client: client, cfg: cfg, sleep: sleepCtx}
}

// Poll re-checks the job named by actualJobName until it reaches a terminal
// state, the attempt budget is exhausted, or ctx is cancelled. It returns the
// completed job, or nil and the error also delivered to cb.OnError.
// Cancellation via ctx returns ctx.Err() without invoking OnError.
func (p *Poller) Poll(ctx context.Context, actualJobName string, cb Callbacks) (*engine.Job, error) {
	attempt := 0
	netRetries := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt >= p.cfg.MaxRetries {
			err := &engine.Error{
				Kind:    engine.KindTimeout,
				JobName: actualJobName,
				Message: fmt.Sprintf("transcription timeout after %d status checks; the job may still be processing", attempt),
			}
			invokeError(cb, err)
			return nil, err
		}

		job, err := p.client.Status(ctx, actualJobName)
		if err != nil {
			if isTransient(err) && netRetries < p.cfg.NetworkMaxRetries {
				netRetries++
				log.Printf("[poller] transient error checking %s (retry %d/%d): %v",
					actualJobName, netRetries, p.cfg.NetworkMaxRetries, err)
				if sleepErr := p.sleep(ctx, p.cfg.NetworkRetryDelay); sleepErr != nil {
					return nil, sleepErr
				}
				continue
			}
			invokeError(cb, err)
			return nil, err
		}
		netRetries = 0

		switch job.Status {
		case engine.StatusCompleted:
			if cb.OnComplete != nil {
				cb.OnComplete(job)
			}
			return job, nil

		case engine.StatusFailed:
			reason := job.FailureReason
			if reason == "" {
				reason = "Unknown error"
			}
			err := &engine.Error{
				Kind:    engine.KindUnknown,
				JobName: actualJobName,
				Message: fmt.Sprintf("transcription failed: %s", reason),
			}
			invokeError(cb, err)
			return nil, err

		case engine.StatusQueued, engine.StatusInProgress:
			if cb.OnUpdate != nil && (attempt == 0 || attempt%p.cfg.StatusUpdateInterval == 0) {
				cb.OnUpdate(job.Status, attempt)
			}
			if sleepErr := p.sleep(ctx, p.backoffDelay(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			attempt++

		default:
			err := &engine.Error{
				Kind:    engine.KindUnknown,
				JobName: actualJobName,
				Message: fmt.Sprintf("unknown transcription status: %s", job.Status),
			}
			invokeError(cb, err)
			return nil, err
		}
	}
}

// backoffDelay computes min(base * multiplier^attempt, max).
func (p *Poller) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(float64(p.cfg.BackoffBase) * math.Pow(p.cfg.BackoffMultiplier, float64(attempt)))
	if delay > p.cfg.BackoffMax {
		return p.cfg.BackoffMax
	}
	return delay
}

func invokeError(cb Callbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func isTransient(err error) bool {
	var engineErr *engine.Error
	if errors.As(err, &engineErr) {
		return engineErr.Kind == engine.KindTransientNetwork
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
