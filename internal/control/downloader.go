// Package control wires the downloader together and manages its
// lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/wmitsuda/akula/internal/core/config"
	"github.com/wmitsuda/akula/internal/core/domain"
	"github.com/wmitsuda/akula/internal/downloader/fetcher"
	"github.com/wmitsuda/akula/internal/downloader/health"
	"github.com/wmitsuda/akula/internal/downloader/receive"
	"github.com/wmitsuda/akula/internal/downloader/save"
	"github.com/wmitsuda/akula/internal/downloader/slices"
	"github.com/wmitsuda/akula/internal/downloader/verify"
	"github.com/wmitsuda/akula/internal/infra/sentry"
	"github.com/wmitsuda/akula/internal/infra/storage"
	"github.com/wmitsuda/akula/internal/infra/storage/memory"
	"github.com/wmitsuda/akula/internal/infra/storage/postgres"
)

// Stage is one step of the header download pipeline. The downloader
// invokes Execute in a loop; stages suspend themselves when they have
// no work.
type Stage interface {
	Name() string
	Execute(ctx context.Context) error
}

// Config holds the application configuration.
type Config struct {
	Port     int
	Sentry   config.SentryConfig
	Download config.DownloadConfig
	Database postgres.Config
}

// Downloader is the main application struct that manages the pipeline
// lifecycle.
type Downloader struct {
	cfg          Config
	store        *slices.Store
	gateway      *sentry.Gateway
	client       *sentry.Client
	repo         storage.HeaderRepository
	db           *postgres.DB
	healthServer *health.Server
	stages       []Stage
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	errMu sync.Mutex
	err   error
}

// NewDownloader creates a Downloader instance with all dependencies
// initialized.
func NewDownloader(cfg Config) (*Downloader, error) {
	log := slog.With("component", "downloader")

	// 1. Initialize the header archive
	var repo storage.HeaderRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		repo = postgres.NewHeaderRepo(db)
		slog.Info("Using PostgreSQL header archive")
	} else {
		repo = memory.NewHeaderRepo()
		slog.Info("Using in-memory header archive")
	}

	// 2. Resume from the archive tip when it is ahead of the configured
	// start block.
	start := domain.BlockNumber(cfg.Download.StartBlock)
	if tip, ok, err := repo.MaxSaved(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to read archive tip: %w", err)
	} else if ok && tip+1 > start {
		start = tip + 1
		slog.Info("Resuming header download from archive tip", "start_block", start)
	}

	store := slices.NewStore(start, cfg.Download.MaxSlices, domain.BlockNumber(cfg.Download.TargetBlock))

	// 3. Connect to the sentry and build the gateway in front of it.
	client, err := sentry.Dial(context.Background(), cfg.Sentry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sentry: %w", err)
	}
	gateway := sentry.NewGateway(client, cfg.Sentry.QueueCapacity)

	d := &Downloader{
		cfg:     cfg,
		store:   store,
		gateway: gateway,
		client:  client,
		repo:    repo,
		db:      db,
		log:     log,
		done:    make(chan struct{}),
	}
	d.healthServer = health.NewServer(
		health.NewMonitor(store, gateway, cfg.Sentry.QueueCapacity),
		cfg.Port,
	)
	d.stages = []Stage{
		fetcher.NewRequestStage(store, gateway),
		fetcher.NewRetryStage(store, cfg.Download.RetryTimeout, cfg.Download.RetryInterval),
		verify.New(store),
		save.New(store, repo),
	}
	return d, nil
}

// Start launches the gateway, the inbound stream, the health server and
// one goroutine per stage. It returns immediately; use Done to observe
// termination.
func (d *Downloader) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	stream, err := d.client.OpenHeaderStream(runCtx)
	if err != nil {
		cancel()
		return err
	}
	stages := append(d.stages, receive.New(d.store, stream, d.client))

	go func() {
		if err := d.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Health server failed", "error", err)
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.gateway.Run(runCtx); err != nil {
			d.fail(err)
		}
	}()

	for _, st := range stages {
		d.wg.Add(1)
		go d.runStage(runCtx, st)
	}

	if d.cfg.Download.TargetBlock != 0 {
		d.wg.Add(1)
		go d.watchCompletion(runCtx)
	}

	go func() {
		d.wg.Wait()
		close(d.done)
	}()

	d.log.Info("Header downloader started",
		"start_block", d.cfg.Download.StartBlock,
		"target_block", d.cfg.Download.TargetBlock,
		"max_slices", d.cfg.Download.MaxSlices)
	return nil
}

// runStage invokes one stage until shutdown or a fatal error. A fatal
// error from any stage stops the whole pipeline.
func (d *Downloader) runStage(ctx context.Context, st Stage) {
	defer d.wg.Done()
	for {
		err := st.Execute(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		d.fail(fmt.Errorf("stage %s: %w", st.Name(), err))
		return
	}
}

// watchCompletion cancels the pipeline once a bounded download drained
// the whole window.
func (d *Downloader) watchCompletion(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.store.Len() == 0 {
				d.log.Info("Header download complete", "target_block", d.cfg.Download.TargetBlock)
				d.cancel()
				return
			}
		}
	}
}

func (d *Downloader) fail(err error) {
	d.errMu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.errMu.Unlock()
	d.log.Error("Pipeline failed", "error", err)
	d.cancel()
}

// Done is closed once every pipeline goroutine has exited.
func (d *Downloader) Done() <-chan struct{} {
	return d.done
}

// Err returns the first fatal pipeline error, if any.
func (d *Downloader) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// Stop shuts the pipeline down and releases every resource. It waits
// for the stage goroutines until ctx expires.
func (d *Downloader) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.store.Close()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.log.Warn("Timed out waiting for pipeline shutdown")
	}

	if err := d.healthServer.Stop(ctx); err != nil {
		d.log.Warn("Failed to stop health server", "error", err)
	}
	if err := d.client.Close(); err != nil {
		d.log.Warn("Failed to close sentry connection", "error", err)
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("Failed to close database", "error", err)
		}
	}
	return nil
}
