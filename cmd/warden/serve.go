package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/warden/internal/backup"
	"github.com/tinytelemetry/warden/internal/duckdb"
	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/geoip"
	"github.com/tinytelemetry/warden/internal/httpserver"
	"github.com/tinytelemetry/warden/internal/ingest"
	"github.com/tinytelemetry/warden/internal/logging"
	"github.com/tinytelemetry/warden/internal/logsource"
	"github.com/tinytelemetry/warden/internal/metrics"
	"github.com/tinytelemetry/warden/internal/session"
	"github.com/tinytelemetry/warden/internal/socketrpc"
	"github.com/tinytelemetry/warden/internal/tcpserver"
)

// flushRefreshDelay bounds how often persisted batches trigger a reload of
// the API snapshot.
const flushRefreshDelay = time.Second

// runServer starts headless ingestion with the HTTP and socket read APIs.
func runServer(cfg appConfig) error {
	_, cleanupLogger := logging.Setup(logging.Options{Path: cfg.LogFile, Level: cfg.LogLevel})
	defer cleanupLogger()

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	sess := session.NewProvider(cfg.AuthToken)

	normalizerCfg := ingest.NormalizerConfig{
		Scale:    cfg.confidenceScale(),
		Observer: m,
	}
	if cfg.GeoIPDB != "" {
		locator, err := geoip.Open(cfg.GeoIPDB)
		if err != nil {
			zap.S().Warnf("geoip disabled: %v", err)
		} else {
			defer locator.Close()
			normalizerCfg.Locator = locator
		}
	}

	// Persisted batches nudge the snapshot reload below.
	flushed := make(chan struct{}, 1)
	insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
		Retries:        cfg.InsertRetries,
		OnFlush: func(n int) {
			m.Flushed(n)
			select {
			case flushed <- struct{}{}:
			default:
			}
		},
	})
	processor := ingest.NewProcessor(insertBuffer, ingest.NewNormalizer(normalizerCfg))

	retention := duckdb.NewRetention(store, duckdb.RetentionConfig{
		MaxAge: time.Duration(cfg.LogRetention) * 24 * time.Hour,
	})

	// The service reads its own store without a user session; callers are
	// checked against auth-token at the API edges instead.
	coord := fetch.NewCoordinator(fetch.Config{
		Store:    store,
		Observer: m,
		Logger:   zap.S(),
	})

	var backupManager *backup.Manager
	if cfg.BackupEnabled {
		backupManager, err = backup.NewManager(store, backup.Config{
			Dir:      cfg.BackupDir,
			Interval: cfg.BackupInterval,
			KeepLast: cfg.BackupKeepLast,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize backups: %w", err)
		}
	}

	if cfg.APIEnabled {
		apiServer, err := httpserver.NewServer(httpserver.Config{
			Addr:      cfg.APIAddr,
			Snapshots: coord,
			Processor: processor,
			Auth:      sess,
			Counter:   store,
			Metrics:   m,
			CacheSize: cfg.CacheSize,
			PageSize:  cfg.PageSize,
		})
		if err != nil {
			return fmt.Errorf("failed to create API server: %w", err)
		}
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	sockServer := socketrpc.NewServer(cfg.SocketPath, store, sess)
	if err := sockServer.Start(); err != nil {
		zap.S().Warnf("failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
		TCP: tcpserver.Config{
			MaxConns:    cfg.TCPMaxConns,
			IdleTimeout: cfg.TCPIdleTimeout,
		},
		Kafka: logsource.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Group:   cfg.KafkaGroup,
			Version: cfg.KafkaVersion,
		},
	})

	sources := make([]logsource.LogSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			zap.S().Errorf("Error initializing input plugin %q: %v", plugin.Name(), err)
			continue
		}
		sources = append(sources, src)
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()
	if !mux.HasSources() {
		if cfg.APIEnabled {
			zap.S().Warn("no input sources enabled, records arrive only through POST /api/ingest")
		} else {
			zap.S().Warn("no input sources enabled and the API is off, nothing will be ingested")
		}
	}

	printStartupBanner(cfg, mux.Names())
	zap.S().Infof("warden %s serving (api=%v sources=%v)", version, cfg.APIEnabled, mux.Names())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for env := range mux.Lines() {
			processor.ProcessEnvelope(env)
		}
		return nil
	})

	g.Go(func() error {
		return coord.Run(gctx, cfg.RefreshInterval)
	})

	g.Go(func() error {
		return reloadOnFlush(gctx, coord, flushed)
	})

	if retention != nil {
		g.Go(func() error {
			return retention.Run(gctx)
		})
	}

	if backupManager != nil {
		g.Go(func() error {
			return backupManager.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		mux.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zap.S().Errorf("server: errgroup exited with error: %v", err)
	}

	cancel()
	mux.Stop()
	insertBuffer.Stop()
	st := insertBuffer.Stats()
	zap.S().Infof("warden stopped (lines=%v added=%d written=%d failed=%d dropped=%d)", mux.Counts(), st.Added, st.Written, st.Failed, st.Dropped)
	return nil
}

// reloadOnFlush refreshes the snapshot after new records reach the store,
// at most once per flushRefreshDelay. Busy loads are skipped; the next
// flush or tick picks the records up.
func reloadOnFlush(ctx context.Context, coord *fetch.Coordinator, flushed <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-flushed:
		}
		if _, err := coord.AutoLoad(ctx); err != nil && !errors.Is(err, fetch.ErrBusy) && ctx.Err() == nil {
			zap.S().Debugf("server: reload after flush failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(flushRefreshDelay):
		}
	}
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}
