// Command ingest runs the file-ingestion pipeline's "process" mode: discover
// files at the configured source location, resolve each against the
// declarative catalog, and drive it through the pipeline state machine
// (spec.md §6 CLI contract).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fileingest/internal/adminserver"
	"fileingest/internal/catalog"
	"fileingest/internal/config"
	"fileingest/internal/dialect"
	"fileingest/internal/heartbeat"
	"fileingest/internal/lineage"
	"fileingest/internal/metrics"
	"fileingest/internal/notify"
	"fileingest/internal/pipeline"
	"fileingest/internal/storage"
	"fileingest/internal/telemetry"
	"fileingest/internal/workerpool"
)

func main() {
	var (
		catalogPath = flag.String("catalog", "", "path to the JSON source catalog")
		singleFile  = flag.String("file", "", "process exactly this one filename instead of scanning the source location")
		sourcePath  = flag.String("directory-path", "", "override INGEST_SOURCE_LOCATION")
		archivePath = flag.String("archive-path", "", "override INGEST_ARCHIVE_LOCATION")
		dupPath     = flag.String("duplicate-files-path", "", "override INGEST_DUPLICATE_LOCATION")
	)
	flag.Parse()

	if err := run(*catalogPath, *singleFile, *sourcePath, *archivePath, *dupPath); err != nil {
		fmt.Fprintln(os.Stderr, "ingest:", err)
		os.Exit(1)
	}
}

func run(catalogPath, singleFile, sourceOverride, archiveOverride, dupOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if sourceOverride != "" {
		cfg.SourceLocation = sourceOverride
	}
	if archiveOverride != "" {
		cfg.ArchiveLocation = archiveOverride
	}
	if dupOverride != "" {
		cfg.DuplicateLocation = dupOverride
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init("fileingest", cfg.OTELExporterEnabled)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer shutdownTracing(context.Background())

	pool, err := pgxpool.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if catalogPath == "" {
		return fmt.Errorf("--catalog is required")
	}
	registry, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	local, err := storage.NewLocal(cfg.ArchiveLocation, cfg.DuplicateLocation)
	if err != nil {
		return fmt.Errorf("failed to init local storage adapter: %w", err)
	}
	router := storage.NewRouter(map[storage.Scheme]storage.Adapter{
		storage.SchemeLocal: local,
	})

	dispatcher := notify.NewDispatcher(notify.NewSMTPSender(notify.SMTPConfig{
		Host:         cfg.SMTPHost,
		Port:         cfg.SMTPPort,
		From:         cfg.FromEmail,
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),
	}))

	events := make(chan lineage.Event, 256)

	var admin *adminserver.Server
	if cfg.AdminListenAddr != "" {
		admin = adminserver.New(pool, []byte(cfg.AdminJWTSecret), log)
		go func() {
			if err := admin.ListenAndServe(ctx, cfg.AdminListenAddr); err != nil {
				log.Error("admin server exited", zap.Error(err))
			}
		}()
		go fanOutEvents(ctx, events, admin)
	}

	metricsSrv := metrics.NewServer(":9090")
	metricsSrv.Start()
	defer metricsSrv.Stop(context.Background())

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	runner := &pipeline.Runner{
		Registry:          registry,
		Router:            router,
		DB:                pool,
		Dialect:           dialect.Postgres{},
		BatchSize:         cfg.BatchSize,
		Notifier:          dispatcher,
		Log:               log,
		Events:            events,
		SourceLocation:    cfg.SourceLocation,
		ArchiveLocation:   cfg.ArchiveLocation,
		DuplicateLocation: cfg.DuplicateLocation,
	}

	var filenames []string
	if singleFile != "" {
		filenames = []string{singleFile}
	} else {
		adapter, err := router.Resolve(cfg.SourceLocation)
		if err != nil {
			return fmt.Errorf("failed to resolve source adapter: %w", err)
		}
		filenames, err = adapter.List(ctx, cfg.SourceLocation)
		if err != nil {
			return fmt.Errorf("failed to list source location: %w", err)
		}
	}

	pool2 := workerpool.New(runner, cfg.WorkerCount)

	if redisClient != nil {
		reporter := heartbeat.NewReporter(redisClient, workerIdentity(), 5*time.Second, log)
		reporter.Start(ctx)
		defer reporter.Stop(context.Background())
	}

	log.Info("starting ingestion run", zap.Int("file_count", len(filenames)))
	summary := pool2.Run(ctx, filenames)

	for outcome, count := range summary.Counts {
		for i := 0; i < count; i++ {
			metrics.RecordOutcome(string(outcome))
		}
		log.Info("outcome summary", zap.String("outcome", string(outcome)), zap.Int("count", count))
	}

	if summary.AnyUnhandled() && cfg.WebhookURL != "" {
		webhook := notify.NewWebhookNotifier(cfg.WebhookURL, nil)
		if err := webhook.Send(context.Background(), "ingestion run completed with unhandled failures",
			fmt.Sprintf("%d unhandled / %d no-source-matched of %d files", summary.Counts[lineage.OutcomeUnhandledFailure], summary.Counts[lineage.OutcomeNoSourceMatched], summary.Total),
			"error", summary.Failed); err != nil {
			log.Warn("failed to send webhook alert", zap.Error(err))
		}
	}

	if summary.AnyUnhandled() {
		return fmt.Errorf("%d file(s) ended in an unhandled outcome", len(summary.Failed))
	}
	return nil
}

func fanOutEvents(ctx context.Context, events <-chan lineage.Event, admin *adminserver.Server) {
	for {
		select {
		case evt := <-events:
			admin.Publish(evt)
		case <-ctx.Done():
			return
		}
	}
}

func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
