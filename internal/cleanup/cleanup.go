// Package cleanup removes finished transcription jobs past their retention
// window. Engine job records are metadata only; the transcript artifacts in
// the object store are untouched.
package cleanup

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reson/transcription-service/internal/engine"
)

// Engine is the transcription engine slice the sweeper needs.
type Engine interface {
	ListByStatus(ctx context.Context, status engine.Status) ([]engine.Summary, error)
	Delete(ctx context.Context, actualJobName string) error
}

// Result reports one sweep.
type Result struct {
	Deleted int
	Errors  []string
}

// Sweeper deletes old terminal jobs.
type Sweeper struct {
	engine        Engine
	retentionDays int

	now func() time.Time
}

// New creates a Sweeper that deletes jobs older than retentionDays.
func New(eng Engine, retentionDays int) *Sweeper {
	return &Sweeper{engine: eng, retentionDays: retentionDays, now: time.Now}
}

// Sweep runs a sweep with the configured retention.
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	return s.SweepOlderThan(ctx, s.retentionDays)
}

// SweepOlderThan deletes COMPLETED and FAILED jobs whose creation time is
// older than retentionDays. The two status listings run concurrently. Per-job
// delete failures are collected into the result, not fatal; a listing failure
// aborts the sweep.
func (s *Sweeper) SweepOlderThan(ctx context.Context, retentionDays int) (*Result, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	var mu sync.Mutex
	result := &Result{}

	g, gctx := errgroup.WithContext(ctx)
	for _, status := range []engine.Status{engine.StatusCompleted, engine.StatusFailed} {
		g.Go(func() error {
			summaries, err := s.engine.ListByStatus(gctx, status)
			if err != nil {
				return fmt.Errorf("failed to list %s jobs: %w", status, err)
			}

			for _, job := range summaries {
				finished := job.CompletionTime
				if finished == nil {
					finished = job.CreationTime
				}
				if finished == nil || !finished.Before(cutoff) {
					continue
				}
				if err := s.engine.Delete(gctx, job.JobName); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", job.JobName, err))
					mu.Unlock()
					continue
				}
				mu.Lock()
				result.Deleted++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("[cleanup] sweep finished: %d deleted, %d errors (cutoff %s)",
		result.Deleted, len(result.Errors), cutoff.Format(time.RFC3339))
	return result, nil
}
