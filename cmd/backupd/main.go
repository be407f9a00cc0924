package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clavora/clavora/internal/api"
	"github.com/clavora/clavora/internal/api/handler"
	"github.com/clavora/clavora/internal/backup"
	"github.com/clavora/clavora/internal/command"
	"github.com/clavora/clavora/internal/config"
	"github.com/clavora/clavora/internal/db"
	"github.com/clavora/clavora/internal/logging"
	"github.com/clavora/clavora/internal/metrics"
	"github.com/clavora/clavora/internal/registry"
	"github.com/clavora/clavora/internal/restore"
	"github.com/clavora/clavora/internal/schedule"
)

// exitRestart tells the supervisor (systemd unit with RestartForceExitStatus)
// that a restore finished and the whole process must come back up against the
// restored database.
const exitRestart = 3

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "rescan" {
		rescan(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0750); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ArchiveDir).Msg("create archive dir")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	reg := registry.New(pool)

	// A crash mid-backup leaves rows stuck in pending/running with no one to
	// finalize them. Settle those before accepting new work.
	if n, err := reg.FailInterrupted(ctx); err != nil {
		logger.Fatal().Err(err).Msg("fail interrupted backups")
	} else if n > 0 {
		logger.Warn().Int64("count", n).Msg("marked interrupted backups as failed")
	}

	gate := backup.NewGate()
	runner := command.NewExecRunner(logger)
	components := buildComponents(logger, runner, cfg)

	backups := backup.NewOrchestrator(logger, reg, gate, cfg.ArchiveDir, components.all...)
	reconciler := registry.NewReconciler(logger, reg)

	// The restore orchestrator signals here once a restore completes and the
	// process must restart against the restored database.
	restartCh := make(chan struct{}, 1)
	restorer := restore.NewOrchestrator(
		logger, reg, backups, reconciler, gate,
		cfg.ArchiveDir, os.TempDir(),
		restore.Components{
			PrimaryDB: components.primaryDB,
			AuthDB:    components.authDB,
			Storage:   components.storage,
			Files:     components.files,
			Config:    components.config,
		},
		func() {
			select {
			case restartCh <- struct{}{}:
			default:
			}
		},
	)

	scheduler := schedule.NewScheduler(logger, reg, backups, gate, cfg.ArchiveDir)
	scheduler.Start(ctx)

	backupHandler := handler.NewBackup(reg, backups, restorer, reconciler, scheduler, gate, cfg.ArchiveDir)
	scheduleHandler := handler.NewSchedule(reg, scheduler)
	srv := api.NewServer(logger, pool, backupHandler, scheduleHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting backup API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	restart := false
	select {
	case <-quit:
		logger.Info().Msg("shutting down server")
	case <-restartCh:
		logger.Info().Msg("restore complete; restarting process")
		restart = true
	}

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	if restart {
		pool.Close()
		os.Exit(exitRestart)
	}
}

type componentSet struct {
	primaryDB backup.Component
	authDB    backup.Component
	storage   backup.Component
	files     backup.Component
	config    backup.Component

	all []backup.Component
}

func buildComponents(logger zerolog.Logger, runner command.Runner, cfg *config.Config) componentSet {
	var set componentSet

	set.primaryDB = backup.NewPostgresComponent(logger, runner, backup.ComponentDatabase, cfg.DatabaseURL)
	set.all = append(set.all, set.primaryDB)

	if cfg.AuthDatabaseURL != "" {
		set.authDB = backup.NewPostgresComponent(logger, runner, backup.ComponentAuthDatabase, cfg.AuthDatabaseURL)
		set.all = append(set.all, set.authDB)
	}

	if cfg.S3Endpoint != "" {
		client := backup.NewS3Client(cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey)
		set.storage = backup.NewStorageComponent(logger, runner, client, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey)
		set.all = append(set.all, set.storage)
	}

	if cfg.UploadDir != "" {
		set.files = backup.NewFilesComponent(logger, cfg.UploadDir)
		set.all = append(set.all, set.files)
	}

	set.config = backup.NewConfigComponent(logger, cfg)
	set.all = append(set.all, set.config)

	return set
}

// rescan runs one registry reconciliation pass and exits. Useful after
// moving archives between hosts or recovering from registry loss without
// starting the full service.
func rescan(args []string) {
	fs := flag.NewFlagSet("rescan", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	reconciler := registry.NewReconciler(logger, registry.New(pool))
	res, err := reconciler.Reconcile(ctx, cfg.ArchiveDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: rescan failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("rescan finished: %d registered, %d skipped, %d failed\n",
		res.Registered, res.Skipped, res.Failed)
}
