// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ragsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/ingestion"
	"github.com/poiesic/ragsync/storage"
)

// TriggerSync records a new job and starts it in the background. It fails
// with ErrSyncInProgress while another job is pending or running.
func (s *Service) TriggerSync(ctx context.Context, mode core.SyncMode) (core.ID, error) {
	if err := core.ValidateSyncMode(mode); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	now := time.Now().UTC()
	job, err := s.stores.Jobs.CreateJob(ctx, &core.SyncJob{
		Mode:      mode,
		Status:    core.SyncStatusPending,
		StartedAt: now,
	})
	if err != nil {
		if errors.Is(err, storage.ErrActiveJob) {
			return 0, fmt.Errorf("%w: %w", ErrSyncInProgress, err)
		}
		return 0, fmt.Errorf("creating sync job: %w", err)
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[job.Id] = r
	s.wg.Add(1)

	go s.execute(runCtx, job, r)

	s.logger.Info("sync triggered", "job", job.Id, "mode", mode)
	return job.Id, nil
}

// CancelSync asks a running job to stop. In-flight items finish; queued
// items are left unattempted. Returns false if the job is not running in
// this process.
func (s *Service) CancelSync(id core.ID) bool {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case <-r.done:
		return false
	default:
	}
	r.cancel()
	s.logger.Info("sync cancellation requested", "job", id)
	return true
}

// Wait blocks until the job started by TriggerSync has recorded its final
// status. It returns at once for unknown or finished jobs.
func (s *Service) Wait(id core.ID) {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if ok {
		<-r.done
	}
}

// Job returns a sync job by id.
func (s *Service) Job(ctx context.Context, id core.ID) (*core.SyncJob, error) {
	return s.stores.Jobs.GetJob(ctx, id)
}

// Jobs returns up to limit jobs, most recent first.
func (s *Service) Jobs(ctx context.Context, limit int) ([]*core.SyncJob, error) {
	return s.stores.Jobs.ListJobs(ctx, limit)
}

func (s *Service) execute(ctx context.Context, job *core.SyncJob, r *run) {
	defer s.wg.Done()
	defer func() {
		r.cancel()
		close(r.done)
		s.mu.Lock()
		delete(s.runs, job.Id)
		s.mu.Unlock()
	}()

	logger := s.logger.With("job", job.Id)
	// Job bookkeeping must land even when the run is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	job.Status = core.SyncStatusRunning
	if err := s.stores.Jobs.UpdateJob(storeCtx, job); err != nil {
		logger.Error("error marking job running", "err", err)
	}

	report, err := s.runSync(ctx, job, logger)

	job.CompletedAt = time.Now().UTC()
	switch {
	case err != nil && ctx.Err() != nil:
		job.Status = core.SyncStatusCancelled
		job.Error = err.Error()
	case err != nil:
		job.Status = core.SyncStatusFailed
		job.Error = err.Error()
	case report.Cancelled:
		job.Status = core.SyncStatusCancelled
	case len(report.Remaining) > 0:
		job.Status = core.SyncStatusFailed
		job.Error = report.Err().Error()
	default:
		job.Status = core.SyncStatusCompleted
	}
	if report != nil {
		job.ItemsTotal = report.Total
		job.ItemsProcessed = report.Succeeded
	}

	if err := s.stores.Jobs.UpdateJob(storeCtx, job); err != nil {
		logger.Error("error recording job result", "err", err)
	}
	logger.Info("sync job finished", "status", job.Status, "processed", job.ItemsProcessed, "total", job.ItemsTotal)
}

func (s *Service) runSync(ctx context.Context, job *core.SyncJob, logger *slog.Logger) (*ingestion.Report, error) {
	opts := []ingestion.Option{
		ingestion.WithRootID(s.cfg.Source.RootID),
		ingestion.WithSourceType(s.cfg.Source.SourceType),
		ingestion.WithCategoryID(s.cfg.Sync.CategoryID),
		ingestion.WithMaxRounds(s.cfg.Sync.MaxRounds),
		ingestion.WithMaxParseFailures(s.cfg.Sync.MaxParseFailures),
		ingestion.WithRoundDelay(s.cfg.Sync.RoundDelay),
		ingestion.WithMetrics(s.metrics),
		ingestion.WithObserver(&jobObserver{jobs: s.stores.Jobs, job: job, logger: logger}),
		ingestion.WithLogger(logger),
	}
	for _, obs := range s.observers {
		opts = append(opts, ingestion.WithObserver(obs))
	}

	syncer, err := ingestion.NewSyncer(s.source, s.index, s.stores.Documents, s.scheduler, s.chunker, opts...)
	if err != nil {
		return nil, err
	}
	return syncer.Run(ctx, job.Mode)
}

// jobObserver persists progress on the job record after every round.
type jobObserver struct {
	jobs      storage.JobRepository
	job       *core.SyncJob
	logger    *slog.Logger
	succeeded int
}

var _ ingestion.Observer = (*jobObserver)(nil)

func (o *jobObserver) Started(total int) {
	o.job.ItemsTotal = total
	o.save()
}

func (o *jobObserver) ItemSucceeded(_ core.CatalogItem, _ ingestion.Outcome) {
	o.succeeded++
}

func (o *jobObserver) RoundFinished(_ ingestion.RoundStats) {
	o.job.ItemsProcessed = o.succeeded
	o.save()
}

func (o *jobObserver) Finished(_ *ingestion.Report) {}

func (o *jobObserver) save() {
	if err := o.jobs.UpdateJob(context.Background(), o.job); err != nil {
		o.logger.Warn("error saving job progress", "err", err)
	}
}
