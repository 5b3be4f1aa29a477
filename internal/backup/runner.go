// Package backup drives the archive loop: discover new broadcasts, then
// download, split, label and upload each pending one.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vodarchive/vodarchive/internal/catalog"
	"github.com/vodarchive/vodarchive/internal/format"
	"github.com/vodarchive/vodarchive/internal/logging"
	"github.com/vodarchive/vodarchive/internal/metrics"
	"github.com/vodarchive/vodarchive/internal/pipeline"
	"github.com/vodarchive/vodarchive/internal/upload"
)

// ErrFFmpegUnavailable is returned by RunOnce when the ffmpeg probe fails.
var ErrFFmpegUnavailable = errors.New("ffmpeg is not available")

// Failure stages, used as the metrics label and error prefix.
const (
	StageDownload = "download"
	StageSplit    = "split"
	StageFormat   = "format"
	StageUpload   = "upload"
	StagePlaylist = "playlist"
	StageStatus   = "status"
)

type Catalog interface {
	SyncNewVideos(ctx context.Context) (int, error)
	PendingBackups(ctx context.Context, limit int) ([]catalog.BackupRecord, error)
}

type StatusStore interface {
	SetInProgress(ctx context.Context, videoID int64, inProgress bool) error
	UpdateBackupStatus(ctx context.Context, s *catalog.BackupStatus) error
}

type Downloader interface {
	Download(ctx context.Context, videoID int64, dir string) (string, error)
}

type Splitter interface {
	Split(ctx context.Context, sourcePath string, softCap, hardCap time.Duration) ([]string, error)
}

type Doctor interface {
	Get(ctx context.Context) *pipeline.Capabilities
}

// Settings are the tunables of a Runner.
type Settings struct {
	DownloadDir         string
	SoftCap             time.Duration
	HardCap             time.Duration
	PollInterval        time.Duration
	BatchLimit          int
	DefaultChannel      string
	Tags                []string
	DescriptionTemplate string
}

// PassStats summarizes one backup pass.
type PassStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	NewVideos  int       `json:"new_videos"`
	Pending    int       `json:"pending"`
	BackedUp   int       `json:"backed_up"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

type Runner struct {
	catalog    Catalog
	store      StatusStore
	downloader Downloader
	splitter   Splitter
	uploader   upload.Client
	doctor     Doctor
	settings   Settings
	logger     *slog.Logger

	running atomic.Bool
	paused  atomic.Bool
	trigger chan struct{}

	passMu   sync.Mutex
	statsMu  sync.RWMutex
	lastPass *PassStats
}

func NewRunner(cat Catalog, store StatusStore, downloader Downloader, splitter Splitter, uploader upload.Client, doctor Doctor, settings Settings, logger *slog.Logger) *Runner {
	if settings.PollInterval <= 0 {
		settings.PollInterval = time.Hour
	}
	if settings.BatchLimit <= 0 {
		settings.BatchLimit = catalog.MaxWatchedStreamers
	}
	return &Runner{
		catalog:    cat,
		store:      store,
		downloader: downloader,
		splitter:   splitter,
		uploader:   uploader,
		doctor:     doctor,
		settings:   settings,
		logger:     logging.WithComponent(logger, "backup"),
		trigger:    make(chan struct{}, 1),
	}
}

// Start runs a pass immediately and then every PollInterval until ctx is
// done. Calling Start while already running is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}
	defer r.running.Store(false)

	r.logger.Info("backup runner started", "poll_interval", r.settings.PollInterval.String())

	ticker := time.NewTicker(r.settings.PollInterval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("backup runner stopping")
			return
		case <-ticker.C:
			r.tick(ctx)
		case <-r.trigger:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.paused.Load() {
		r.logger.Debug("backup runner paused, skipping pass")
		return
	}
	if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("backup pass failed", "error", err)
	}
}

// Trigger asks a started runner to run a pass now. Requests made while one
// is already queued are dropped.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("backup runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("backup runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// LastPass returns the stats of the most recent pass, or nil before the first.
func (r *Runner) LastPass() *PassStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	if r.lastPass == nil {
		return nil
	}
	stats := *r.lastPass
	return &stats
}

// RunOnce performs a single pass: sync the catalog, then back up up to
// BatchLimit pending videos one at a time. Passes never overlap.
func (r *Runner) RunOnce(ctx context.Context) (PassStats, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	stats := PassStats{StartedAt: time.Now().UTC()}
	err := r.runPass(ctx, &stats)
	stats.FinishedAt = time.Now().UTC()
	if err != nil {
		stats.Error = err.Error()
	}

	r.statsMu.Lock()
	r.lastPass = &stats
	r.statsMu.Unlock()

	metrics.RecordPass(stats.Pending-stats.BackedUp, stats.FinishedAt)
	r.logger.Info("backup pass finished",
		"new_videos", stats.NewVideos,
		"pending", stats.Pending,
		"backed_up", stats.BackedUp,
		"failed", stats.Failed,
		"duration_ms", stats.FinishedAt.Sub(stats.StartedAt).Milliseconds(),
	)
	return stats, err
}

func (r *Runner) runPass(ctx context.Context, stats *PassStats) error {
	caps := r.doctor.Get(ctx)
	if caps == nil || !caps.Available {
		reason := ""
		if caps != nil {
			reason = caps.Error
		}
		r.logger.Warn("skipping backup pass", "reason", "ffmpeg unavailable", "error", reason)
		return ErrFFmpegUnavailable
	}

	added, err := r.catalog.SyncNewVideos(ctx)
	stats.NewVideos = added
	metrics.NewVideos.Add(float64(added))
	if err != nil {
		// Partial sync failures still leave the catalog usable.
		r.logger.Warn("catalog sync incomplete", "error", err)
	}

	// The catalog keeps syncing without a video host, but nothing is
	// downloaded or marked until uploads can happen.
	if !upload.Enabled(r.uploader) {
		r.logger.Warn("skipping backups", "reason", "no video host configured")
		return upload.ErrUploadsDisabled
	}

	pending, err := r.catalog.PendingBackups(ctx, r.settings.BatchLimit)
	if err != nil {
		return fmt.Errorf("list pending backups: %w", err)
	}
	stats.Pending = len(pending)

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.paused.Load() {
			r.logger.Info("backup runner paused mid-pass", "remaining", stats.Pending-stats.BackedUp-stats.Failed)
			return nil
		}
		if err := r.Backup(ctx, rec); err != nil {
			stats.Failed++
			continue
		}
		stats.BackedUp++
	}
	return nil
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func fail(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

// Backup archives one video and records the outcome in its status row. The
// working directory, and with it every part, is removed afterwards whether
// or not the upload succeeded.
func (r *Runner) Backup(ctx context.Context, rec catalog.BackupRecord) error {
	id := rec.Video.ID
	logger := logging.WithStreamer(logging.WithVideoID(r.logger, id), rec.Streamer.Login)
	start := time.Now()

	// Status writes must land even when the pass is being cancelled.
	statusCtx := context.WithoutCancel(ctx)
	if err := r.store.SetInProgress(statusCtx, id, true); err != nil {
		return fail(StageStatus, err)
	}

	workDir := filepath.Join(r.settings.DownloadDir, strconv.FormatInt(id, 10))
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove working directory", "path", logging.SanitizePath(workDir), "error", err)
		}
	}()

	playlistID, parts, err := r.archive(ctx, rec, workDir, logger)

	status := &catalog.BackupStatus{VideoID: id, PartCount: parts}
	if err != nil {
		status.Error = err.Error()
	} else {
		status.BackedUp = true
		status.PlaylistID = playlistID
	}
	if uerr := r.store.UpdateBackupStatus(statusCtx, status); uerr != nil {
		logger.Error("failed to record backup status", "error", uerr)
		if err == nil {
			err = fail(StageStatus, uerr)
		}
	}

	stage := ""
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	metrics.RecordBackup(err == nil, stage, time.Since(start))

	if err != nil {
		logger.Error("backup failed", "stage", stage, "error", err)
		return err
	}
	metrics.PartsPerVideo.Observe(float64(parts))
	logger.Info("backup completed",
		"parts", parts,
		"playlist_id", playlistID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// archive returns the playlist id and the number of parts uploaded.
func (r *Runner) archive(ctx context.Context, rec catalog.BackupRecord, workDir string, logger *slog.Logger) (string, int, error) {
	// Fail on unusable metadata before spending hours on the download.
	playlistTitle, err := format.PlaylistTitle(rec)
	if err != nil {
		return "", 0, fail(StageFormat, err)
	}

	sourcePath, err := r.downloader.Download(ctx, rec.Video.ID, workDir)
	if err != nil {
		return "", 0, fail(StageDownload, err)
	}

	parts, err := r.splitter.Split(ctx, sourcePath, r.settings.SoftCap, r.settings.HardCap)
	if err != nil {
		return "", 0, fail(StageSplit, err)
	}
	slices.Sort(parts)
	total := len(parts)
	logger.Info("video split", "parts", total)

	privacy := upload.PrivacyPrivate
	if rec.Streamer.PublicByDefault {
		privacy = upload.PrivacyPublic
	}
	channel := rec.Streamer.YouTubeUser
	if channel == "" {
		channel = r.settings.DefaultChannel
	}

	playlist, err := r.uploader.Playlists().FindOrCreate(ctx, channel, playlistTitle, privacy)
	if err != nil {
		return "", 0, fail(StagePlaylist, err)
	}

	uploaded := 0
	for i, part := range parts {
		n := i + 1
		title, err := format.Title(rec, n, total)
		if err != nil {
			return playlist.ID, uploaded, fail(StageFormat, err)
		}

		videoID, err := r.uploader.UploadVideo(ctx, upload.Video{
			Path:        part,
			Title:       title,
			Description: format.Description(rec, n, total, r.settings.DescriptionTemplate),
			Tags:        slices.Clone(r.settings.Tags),
			Privacy:     privacy,
			Channel:     channel,
		})
		if err != nil {
			return playlist.ID, uploaded, fail(StageUpload, fmt.Errorf("part %d/%d: %w", n, total, err))
		}
		uploaded++
		metrics.PartsUploaded.Inc()

		if err := r.uploader.Playlists().AddItem(ctx, playlist.ID, videoID); err != nil {
			return playlist.ID, uploaded, fail(StagePlaylist, fmt.Errorf("part %d/%d: %w", n, total, err))
		}
		logger.Info("part uploaded", "part", n, "total", total, "upload_id", videoID)
	}
	return playlist.ID, uploaded, nil
}
