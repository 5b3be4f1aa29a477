package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vodarchive/vodarchive/internal/api"
	"github.com/vodarchive/vodarchive/internal/backup"
	"github.com/vodarchive/vodarchive/internal/catalog"
	"github.com/vodarchive/vodarchive/internal/config"
	"github.com/vodarchive/vodarchive/internal/db"
	"github.com/vodarchive/vodarchive/internal/logging"
	"github.com/vodarchive/vodarchive/internal/pipeline"
	"github.com/vodarchive/vodarchive/internal/segment"
	"github.com/vodarchive/vodarchive/internal/source"
	"github.com/vodarchive/vodarchive/internal/upload"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the backup daemon (status API and poll loop)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single backup pass and exit")
	return cmd
}

// app holds the wired components shared by the commands.
type app struct {
	cfg      *config.FileConfig
	logger   *slog.Logger
	database *db.DB
	repo     catalog.Repository
	catalog  *catalog.Service
	doctor   *pipeline.CachedDoctor
	runner   *backup.Runner
}

func (a *app) Close() {
	if a.database != nil {
		a.database.Close()
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.DownloadDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting vodarchive", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, database: database}
	a.repo = catalog.NewRepository(database.Conn())

	srcClient := source.NewClient(cfg.SourceBaseURL(), cfg.SourceToken(), logging.WithComponent(logger, "source"))
	var videoSource catalog.VideoSource
	if cfg.SourceBaseURL() != "" {
		videoSource = srcClient
	} else {
		logger.Warn("no source platform configured, catalog sync disabled")
	}
	a.catalog = catalog.NewService(a.repo, videoSource, logging.WithComponent(logger, "catalog"))

	var uploader upload.Client
	if cfg.UploadBaseURL() != "" {
		uploader = upload.NewHTTPClient(cfg.UploadBaseURL(), cfg.UploadToken(), logging.WithComponent(logger, "upload"))
		logger.Info("uploads enabled", "base_url", cfg.UploadBaseURL(), "token", logging.SanitizeToken(cfg.UploadToken()))
	} else {
		uploader = upload.NewStubClient(logging.WithComponent(logger, "upload"))
		logger.Warn("no upload host configured, backups are skipped until one is set")
	}

	var ffmpeg pipeline.FFmpeg
	if ff, err := pipeline.NewSubprocessFFmpeg(cfg.FFmpegPath(), logger); err != nil {
		logger.Warn("ffmpeg unavailable, backups disabled", "error", err)
	} else {
		ffmpeg = ff
	}
	a.doctor = pipeline.NewCachedDoctor(ffmpeg, logger)
	if caps := a.doctor.Refresh(ctx); caps.Available {
		logger.Info("ffmpeg detected", "version", caps.Version)
	}

	a.runner = backup.NewRunner(
		a.catalog,
		a.repo,
		srcClient,
		segment.New(ffmpeg, logging.WithComponent(logger, "segment")),
		uploader,
		a.doctor,
		backup.Settings{
			DownloadDir:         cfg.DownloadDir(),
			SoftCap:             cfg.SoftCap(),
			HardCap:             cfg.HardCap(),
			PollInterval:        cfg.PollInterval(),
			BatchLimit:          cfg.BatchLimit(),
			DefaultChannel:      cfg.DefaultChannel(),
			Tags:                cfg.Tags(),
			DescriptionTemplate: cfg.DescriptionTemplate(),
		},
		logger,
	)
	return a, nil
}

func runDaemon(cmd *cobra.Command, once bool) error {
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if once {
		stats, err := a.runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pass finished: %d new, %d pending, %d backed up, %d failed\n",
			stats.NewVideos, stats.Pending, stats.BackedUp, stats.Failed)
		return nil
	}

	authToken, err := ensureAuthToken(ctx, a.repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  vodarchive %s\n", config.Version)
	fmt.Fprintf(out, "  API URL:    http://127.0.0.1:%d\n", a.cfg.Port())
	fmt.Fprintf(out, "  Auth Token: %s\n", authToken)
	fmt.Fprintln(out)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           a.cfg.Port(),
		CatalogService: a.catalog,
		Repository:     a.repo,
		Runner:         a.runner,
		Doctor:         a.doctor,
		Logger:         logging.WithComponent(a.logger, "api"),
		StartTime:      startTime,
		Version:        config.Version,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.runner.Start(ctx)
		return nil
	})
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(ctx context.Context, repo catalog.Repository) (string, error) {
	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}
