// Package main is the entry point for syncd, the treasury's background
// sync daemon. It drives the three-tier refresh/full/deep pipeline
// against the upstream analytics API, persists the derived state, and
// exposes nothing but its own health over a tiny HTTP endpoint. This
// module has no other entrypoint and serves no advisory surface.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tao-treasury/internal/backup"
	"github.com/aristath/tao-treasury/internal/cache"
	"github.com/aristath/tao-treasury/internal/config"
	"github.com/aristath/tao-treasury/internal/datastore"
	"github.com/aristath/tao-treasury/internal/metrics"
	"github.com/aristath/tao-treasury/internal/sync"
	"github.com/aristath/tao-treasury/internal/upstream"
	"github.com/aristath/tao-treasury/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Error().Err(err).Msg("failed to load configuration")
		os.Exit(2)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting syncd")

	treasuryDB, err := datastore.New(datastore.Config{
		Path:    cfg.DatabasePath,
		Profile: datastore.ProfileStandard,
		Name:    "treasury",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open treasury database")
		os.Exit(1)
	}
	defer treasuryDB.Close()

	cacheDB, err := datastore.New(datastore.Config{
		Path:    cfg.CachePath,
		Profile: datastore.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to open cache database")
		os.Exit(1)
	}
	defer cacheDB.Close()

	metricsRegistry := metrics.New()
	cacheStore := cache.New(cacheDB.Conn(), metricsRegistry, log)

	upstreamClient := upstream.New(upstream.Config{
		BaseURL:            cfg.UpstreamBaseURL,
		APIKey:             cfg.UpstreamAPIKey,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RetryBase:          cfg.RetryBase,
		RetryCap:           cfg.RetryCap,
		Cache:              cacheStore,
	}, log)

	viabilityConfigRepo := datastore.NewViabilityConfigRepo(treasuryDB)
	if row, ok, err := viabilityConfigRepo.ActiveRow(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to load active viability config, using environment defaults")
	} else if ok {
		cfg.ApplyActiveViabilityConfig(&row)
	}

	pipeline := sync.NewLivePipeline(upstreamClient, treasuryDB, cfg, log)
	syncRunRepo := datastore.NewSyncRunRepo(treasuryDB)

	orchestrator := sync.New(pipeline, upstreamClient, syncRunRepo, sync.Config{
		RefreshInterval: cfg.RefreshTierInterval,
		FullInterval:    cfg.FullTierInterval,
		DeepTierHour:    cfg.DeepTierHour,
		RetryBase:       cfg.RetryBase,
		RetryCap:        cfg.RetryCap,
		ShutdownGrace:   10 * time.Second,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orchestrator.Start(ctx)
	log.Info().
		Dur("refresh_interval", cfg.RefreshTierInterval).
		Dur("full_interval", cfg.FullTierInterval).
		Int("deep_tier_hour", cfg.DeepTierHour).
		Msg("sync orchestrator started")

	var backupSvc *backup.Service
	if cfg.Backup.Enabled {
		backupSvc, err = backup.New(ctx, backup.Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
			Retain:          cfg.Backup.Retain,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize backup service, offsite snapshots disabled")
		} else {
			go runBackupLoop(ctx, backupSvc, treasuryDB.Conn(), cfg, log)
			log.Info().Dur("interval", cfg.Backup.Interval).Msg("backup loop started")
		}
	}

	healthSrv := newHealthServer(treasuryDB.Conn(), cacheDB.Conn(), upstreamClient, cfg, log)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down syncd")
	cancel()
	orchestrator.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("syncd stopped")
}

// runBackupLoop snapshots the treasury database on cfg.Backup.Interval
// and rotates old snapshots, until ctx is cancelled.
func runBackupLoop(ctx context.Context, svc *backup.Service, conn *sql.DB, cfg *config.Config, log zerolog.Logger) {
	ticker := time.NewTicker(cfg.Backup.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stagingDir, err := os.MkdirTemp("", "tao-treasury-backup-*")
			if err != nil {
				log.Error().Err(err).Msg("failed to create backup staging dir")
				continue
			}
			if _, err := svc.Snapshot(ctx, conn, stagingDir); err != nil {
				log.Error().Err(err).Msg("snapshot failed")
				continue
			}
			if deleted, err := svc.Rotate(ctx, 0); err != nil {
				log.Error().Err(err).Msg("backup rotation failed")
			} else if deleted > 0 {
				log.Info().Int("deleted", deleted).Msg("rotated old backups")
			}
		}
	}
}

// rateLimitSource adapts *upstream.Client to sync.RateLimitSource.
var _ sync.RateLimitSource = (*upstream.Client)(nil)

// newHealthServer builds the §6 health endpoint: datastore, cache, and
// upstream reachability plus the last-sync-age staleness flag.
func newHealthServer(treasuryConn, cacheConn *sql.DB, client *upstream.Client, cfg *config.Config, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := "ok"
		probeCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := treasuryConn.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = "treasury database unreachable"
		} else if err := cacheConn.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = "cache database unreachable"
		} else if _, active := client.CurrentRetryAfter(); active {
			status = http.StatusOK
			body = "degraded: upstream rate limited"
		} else if !client.HealthCheck(probeCtx) {
			body = "degraded: upstream unreachable"
		}

		var lastSync sql.NullString
		_ = treasuryConn.QueryRowContext(r.Context(), `SELECT MAX(finished_at) FROM sync_runs WHERE success = 1`).Scan(&lastSync)
		stale := "true"
		if t, err := time.Parse("2006-01-02 15:04:05", lastSync.String); err == nil && time.Since(t) <= cfg.StaleDataThreshold {
			stale = "false"
		}
		if !lastSync.Valid {
			lastSync.String = "never"
		}
		body += "\nlast_sync: " + lastSync.String + "\nstale: " + stale

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})

	return &http.Server{
		Addr:         ":8090",
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}
