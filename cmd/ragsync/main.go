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


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/ragsync"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragsync",
		Usage: "Knowledge catalog ingestion and retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				EnvVars: []string{"RAGSYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error), overrides log.level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Synchronize the knowledge catalog into the vector index",
				Action: syncCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Re-sync every catalog item instead of only changed ones",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-chunk and re-embed every stored document",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Continue from the last checkpoint of an interrupted reindex",
					},
				},
			},
			{
				Name:      "context",
				Usage:     "Assemble retrieval context for a query",
				ArgsUsage: "QUERY",
				Action:    contextCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of nearest chunks to retrieve (default from config)",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum similarity score (default from config)",
					},
					&cli.IntFlag{
						Name:  "max-length",
						Usage: "Maximum context length in characters (default from config)",
					},
				},
			},
			{
				Name:      "jobs",
				Usage:     "List sync jobs, or show one job by id",
				ArgsUsage: "[ID]",
				Action:    jobsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: 20,
					},
				},
			},
		},
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := setupLogger(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openService loads the configuration, opens the service and starts the
// metrics endpoint when one is configured. The returned function releases
// both.
func openService(c *cli.Context) (*ragsync.Service, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}

	var opts []ragsync.Option
	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, ragsync.WithRegisterer(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("metrics endpoint stopped", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
		slog.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	svc, err := ragsync.Open(cfg, opts...)
	if err != nil {
		if srv != nil {
			srv.Close()
		}
		return nil, nil, fmt.Errorf("failed to open service: %w", err)
	}

	release := func() {
		if err := svc.Close(); err != nil {
			slog.Warn("closing service", "err", err)
		}
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}
	}
	return svc, release, nil
}

func syncCommand(c *cli.Context) error {
	svc, release, err := openService(c)
	if err != nil {
		return err
	}
	defer release()

	mode := core.SyncModeIncremental
	if c.Bool("full") {
		mode = core.SyncModeFull
	}

	id, err := svc.TriggerSync(c.Context, mode)
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Started %s sync job %d\n", mode, id)

	// An interrupt cancels the job; in-flight items still finish.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	go func() {
		svc.Wait(id)
		close(done)
	}()

	select {
	case <-done:
	case <-sigs:
		fmt.Fprintln(c.App.ErrWriter, "Interrupted, cancelling sync...")
		svc.CancelSync(id)
		<-done
	}

	job, err := svc.Job(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to load job %d: %w", id, err)
	}
	printJob(c, job)

	if job.Status == core.SyncStatusFailed {
		return fmt.Errorf("sync job %d failed: %s", id, job.Error)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	svc, release, err := openService(c)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := svc.Reindex(ctx, c.App.ErrWriter, c.Bool("resume")); err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	return nil
}

func contextCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	svc, release, err := openService(c)
	if err != nil {
		return err
	}
	defer release()

	var opts []ragsync.ContextOption
	if c.IsSet("k") {
		opts = append(opts, ragsync.WithK(c.Int("k")))
	}
	if c.IsSet("min-score") {
		opts = append(opts, ragsync.WithMinScore(float32(c.Float64("min-score"))))
	}
	if c.IsSet("max-length") {
		opts = append(opts, ragsync.WithMaxLength(c.Int("max-length")))
	}

	fmt.Fprintln(c.App.Writer, svc.BuildContext(c.Context, query, opts...))
	return nil
}

func jobsCommand(c *cli.Context) error {
	svc, release, err := openService(c)
	if err != nil {
		return err
	}
	defer release()

	if c.Args().Present() {
		raw := c.Args().First()
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", raw, err)
		}
		job, err := svc.Job(c.Context, core.ID(n))
		if err != nil {
			return fmt.Errorf("failed to load job %d: %w", n, err)
		}
		printJob(c, job)
		return nil
	}

	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	jobs, err := svc.Jobs(c.Context, limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(c.App.Writer, "No sync jobs")
		return nil
	}
	for _, job := range jobs {
		printJob(c, job)
	}
	return nil
}

func printJob(c *cli.Context, job *core.SyncJob) {
	fmt.Fprintf(c.App.Writer, "%d\t%s\t%s\t%d/%d\t%s",
		job.Id, job.Mode, job.Status, job.ItemsProcessed, job.ItemsTotal,
		job.StartedAt.Format(time.RFC3339))
	if job.Error != "" {
		fmt.Fprintf(c.App.Writer, "\t%s", job.Error)
	}
	fmt.Fprintln(c.App.Writer)
}

func setupLogger(cfg config.LogConfig) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
