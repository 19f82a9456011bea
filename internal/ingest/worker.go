// Package ingest runs bulk capture imports in the background. Import jobs
// are queued in the SQLite job table; the worker claims them one at a time,
// extracts capture lines from the source file, categorizes each through the
// engine, and records the results into capture history.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/triage/internal/engine"
	"github.com/kalambet/triage/internal/storage"
)

// JobType identifies capture-import jobs in the queue.
const JobType = "capture_import"

// JobStore abstracts the queue and capture persistence operations.
// Implemented by storage.Store.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	SaveCapture(c storage.CaptureRecord) (storage.CaptureRecord, error)
}

// Categorizer is the slice of the engine the worker needs.
type Categorizer interface {
	Categorize(ctx context.Context, text string, kind engine.ContentType) engine.Result
}

// Payload is the JSON body of a capture_import job.
type Payload struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
}

// Worker processes capture_import jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	engine Categorizer
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, eng Categorizer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		engine: eng,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single import job. Returns true if a job
// was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("import job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Path == "" {
		return fmt.Errorf("import job %s has no path", job.ID)
	}
	kind := engine.ContentType(payload.ContentType)
	if !engine.ValidContentType(payload.ContentType) {
		kind = engine.ContentNote
	}

	text, err := ExtractText(payload.Path)
	if err != nil {
		return err
	}

	var imported int
	for _, line := range SplitCaptures(text) {
		res := w.engine.Categorize(ctx, line, kind)
		_, err := w.store.SaveCapture(storage.CaptureRecord{
			Text:        line,
			ContentType: string(kind),
			Pillar:      res.Pillar,
			Area:        res.Area,
			Project:     res.Project,
			Confidence:  res.Confidence,
		})
		if err != nil {
			return fmt.Errorf("saving imported capture: %w", err)
		}
		imported++
	}

	w.logger.Info("import complete", "job_id", job.ID, "path", payload.Path, "captures", imported)
	return nil
}
