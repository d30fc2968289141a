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


// Package ragsync keeps a vector index in step with a remote document
// catalog and builds question-answering context from it.
//
// A Service wires the catalog client, the embedding backend, the vector
// index and the local Badger store from a config.Config. Sync runs are
// fire-and-forget: TriggerSync records a SyncJob and returns its id, the run
// proceeds in the background, and progress is read back through Job.
//
//	svc, err := ragsync.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
//	...
//	text := svc.BuildContext(ctx, "how do I rotate keys?")
package ragsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/openai"
	"github.com/poiesic/ragsync/catalog"
	"github.com/poiesic/ragsync/chunker"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/ingestion"
	"github.com/poiesic/ragsync/reindex"
	"github.com/poiesic/ragsync/retrieval"
	"github.com/poiesic/ragsync/schedule"
	"github.com/poiesic/ragsync/storage"
	"github.com/poiesic/ragsync/storage/badger"
	"github.com/poiesic/ragsync/vectorstore"
	"github.com/poiesic/ragsync/vectorstore/qdrant"
)

var (
	// ErrConfigRequired is returned when Open is called without a configuration.
	ErrConfigRequired = errors.New("config required")

	// ErrSyncInProgress is returned by TriggerSync while another job is pending or running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("service closed")
)

// Service is the entry point to the pipeline.
type Service struct {
	cfg       *config.Config
	stores    *badger.Stores
	source    ingestion.CatalogSource
	index     *vectorstore.Index
	owned     io.Closer // vector store opened by Open, if any
	scheduler *schedule.Scheduler
	chunker   *chunker.Chunker
	assembler *retrieval.Assembler
	metrics   *ingestion.Metrics
	observers []ingestion.Observer
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runs   map[core.ID]*run
	closed bool
	wg     sync.WaitGroup
}

// run is a sync job executing in the background.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	embedder   ai.Embedder
	source     ingestion.CatalogSource
	store      vectorstore.Store
	registerer prometheus.Registerer
	observers  []ingestion.Observer
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEmbedder replaces the embedder built from the configuration.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *options) {
		o.embedder = embedder
	}
}

// WithCatalogSource replaces the catalog client built from the configuration.
func WithCatalogSource(source ingestion.CatalogSource) Option {
	return func(o *options) {
		o.source = source
	}
}

// WithVectorStore replaces the vector store selected by index.backend.
func WithVectorStore(store vectorstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRegisterer registers sync metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithObserver adds an observer to every sync run.
func WithObserver(observer ingestion.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, observer)
	}
}

// Open builds a Service from cfg. The configuration is validated first.
// Caller must call Close when done.
func Open(cfg *config.Config, opts ...Option) (svc *Service, err error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger

	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}
	}()

	stores, err := badger.OpenStores(cfg.Storage.Path, cfg.Storage.InMemory, logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	closers = append(closers, stores)

	embedder := o.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(cfg.AIConfig(), openai.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
	}

	var owned io.Closer
	store := o.store
	if store == nil {
		switch cfg.Index.Backend {
		case config.IndexBackendBadger:
			store = stores.Points
		default:
			qs, err := qdrant.NewStore(cfg.QdrantConfig(), qdrant.WithLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("connecting to qdrant: %w", err)
			}
			closers = append(closers, qs)
			owned = qs
			store = qs
		}
	}

	index, err := vectorstore.NewIndex(store, embedder,
		vectorstore.WithVectorSize(cfg.Index.VectorSize),
		vectorstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	source := o.source
	if source == nil {
		client, err := catalog.NewClient(cfg.CatalogConfig(), catalog.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating catalog client: %w", err)
		}
		source = client
	}

	scheduler, err := schedule.New(
		schedule.WithMaxConcurrent(cfg.Scheduler.MaxConcurrent),
		schedule.WithMinInterval(cfg.Scheduler.MinInterval),
		schedule.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	c, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		scheduler.Close()
		return nil, err
	}

	assembler, err := retrieval.NewAssembler(index, retrieval.WithLogger(logger))
	if err != nil {
		scheduler.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc = &Service{
		cfg:       cfg,
		stores:    stores,
		source:    source,
		index:     index,
		owned:     owned,
		scheduler: scheduler,
		chunker:   c,
		assembler: assembler,
		observers: o.observers,
		logger:    logger.With("component", "ragsync"),
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[core.ID]*run),
	}
	if o.registerer != nil {
		svc.metrics = ingestion.NewMetrics(o.registerer)
	}

	if err := svc.recoverInterrupted(); err != nil {
		svc.logger.Warn("could not recover interrupted job", "err", err)
	}

	return svc, nil
}

// recoverInterrupted fails a job left pending or running by a previous
// process, which would otherwise block every future sync.
func (s *Service) recoverInterrupted() error {
	ctx := context.Background()
	job, err := s.stores.Jobs.ActiveJob(ctx)
	if err != nil || job == nil {
		return err
	}

	s.logger.Warn("marking interrupted job as failed", "job", job.Id, "status", job.Status)
	now := time.Now().UTC()
	job.Status = core.SyncStatusFailed
	job.Error = "interrupted: process exited before the job finished"
	job.CompletedAt = now
	return s.stores.Jobs.UpdateJob(ctx, job)
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Index returns the vector index.
func (s *Service) Index() *vectorstore.Index {
	return s.index
}

// Documents returns the document repository.
func (s *Service) Documents() storage.DocumentRepository {
	return s.stores.Documents
}

// Close cancels running syncs, waits for them to record their final status
// and releases every resource.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.scheduler.Close()

	var errs []error
	if s.owned != nil {
		if err := s.owned.Close(); err != nil {
			s.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.stores.Close(); err != nil {
		s.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ContextOption overrides one configured context assembly bound.
type ContextOption func(*retrieval.Params)

// WithK sets the number of chunks retrieved.
func WithK(k int) ContextOption {
	return func(p *retrieval.Params) {
		p.K = k
	}
}

// WithMinScore sets the minimum similarity a chunk needs to be kept.
func WithMinScore(score float32) ContextOption {
	return func(p *retrieval.Params) {
		p.MinScore = score
	}
}

// WithMaxLength sets the context length budget in characters. Below 1 the
// context is unbounded.
func WithMaxLength(n int) ContextOption {
	return func(p *retrieval.Params) {
		p.MaxLength = n
	}
}

// BuildContext assembles context for query. Bounds not overridden by opts
// keep their configured values. Search failures are logged and degrade to
// retrieval.NoContext.
func (s *Service) BuildContext(ctx context.Context, query string, opts ...ContextOption) string {
	p := s.cfg.RetrievalParams()
	for _, opt := range opts {
		opt(&p)
	}

	text, err := s.assembler.BuildContext(ctx, query, p)
	if err != nil {
		s.logger.Warn("context assembly failed, continuing without context", "err", err)
		return retrieval.NoContext
	}
	return text
}

// Reindex re-chunks and re-embeds every stored document, writing progress
// to w. resume continues an interrupted reindex.
func (s *Service) Reindex(ctx context.Context, w io.Writer, resume bool) (int, error) {
	rc := reindex.DefaultConfig()
	rc.SourceType = s.cfg.Source.SourceType
	rc.CategoryID = s.cfg.Sync.CategoryID
	rc.Resume = resume

	r, err := reindex.NewReindexer(s.stores.Documents, s.stores.Checkpoints, s.index, s.chunker, rc, w)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}
