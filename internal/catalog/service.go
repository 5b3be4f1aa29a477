package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MaxWatchedStreamers bounds how many streamers one sync pass visits.
const MaxWatchedStreamers = 1000

// VideoSource lists the archived videos of a streamer on the source platform.
type VideoSource interface {
	ListVideos(ctx context.Context, login string) ([]Video, error)
}

type CatalogService interface {
	AddStreamer(ctx context.Context, s Streamer) (*Streamer, error)
	ListStreamers(ctx context.Context) ([]*Streamer, error)
	ListStatuses(ctx context.Context, state string, limit int) ([]*BackupStatus, error)
	CountByState(ctx context.Context) (map[string]int, error)
	SyncNewVideos(ctx context.Context) (int, error)
	PendingBackups(ctx context.Context, limit int) ([]BackupRecord, error)
	Record(ctx context.Context, videoID int64) (*BackupRecord, error)
}

type Service struct {
	repo   Repository
	source VideoSource
	logger *slog.Logger
}

// NewService wires the catalog to its store. source may be nil, in which case
// SyncNewVideos is a no-op.
func NewService(repo Repository, source VideoSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, source: source, logger: logger}
}

func (s *Service) Repository() Repository {
	return s.repo
}

func (s *Service) AddStreamer(ctx context.Context, st Streamer) (*Streamer, error) {
	st.Login = NormalizeLogin(st.Login)
	if st.Login == "" {
		return nil, fmt.Errorf("streamer login is required")
	}

	existing, err := s.repo.GetStreamer(ctx, st.Login)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		st.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.UpsertStreamer(ctx, &st); err != nil {
		return nil, err
	}
	s.logger.Info("streamer saved", "login", st.Login, "watched", st.Watched)
	return &st, nil
}

func (s *Service) ListStreamers(ctx context.Context) ([]*Streamer, error) {
	return s.repo.ListStreamers(ctx)
}

func (s *Service) ListStatuses(ctx context.Context, state string, limit int) ([]*BackupStatus, error) {
	return s.repo.ListStatuses(ctx, state, limit)
}

func (s *Service) CountByState(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByState(ctx)
}

// SyncNewVideos records every archive of a watched streamer that the catalog
// has not seen yet, each with a pending status row. A failing streamer does
// not stop the others; the joined errors are returned alongside the count.
func (s *Service) SyncNewVideos(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, nil
	}

	streamers, err := s.repo.ListWatchedStreamers(ctx, MaxWatchedStreamers)
	if err != nil {
		return 0, fmt.Errorf("list watched streamers: %w", err)
	}

	var errs []error
	added := 0
	for _, st := range streamers {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		videos, err := s.source.ListVideos(ctx, st.Login)
		if err != nil {
			s.logger.Warn("failed to list videos", "login", st.Login, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", st.Login, err))
			continue
		}

		for i := range videos {
			v := videos[i]
			v.StreamerLogin = st.Login
			created, err := s.repo.InsertVideo(ctx, &v)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if created {
				added++
				s.logger.Info("new video", "video_id", v.ID, "login", st.Login)
			}
		}
	}

	s.logger.Info("sync completed", "streamers", len(streamers), "new_videos", added)
	return added, errors.Join(errs...)
}

// PendingBackups returns up to limit videos awaiting backup in ascending id
// order. Videos whose row or streamer is missing are skipped.
func (s *Service) PendingBackups(ctx context.Context, limit int) ([]BackupRecord, error) {
	statuses, err := s.repo.ListPendingStatuses(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	records := make([]BackupRecord, 0, len(statuses))
	for _, st := range statuses {
		rec, err := s.assemble(ctx, st)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// Record loads the full backup record of one video, or nil if unknown.
func (s *Service) Record(ctx context.Context, videoID int64) (*BackupRecord, error) {
	st, err := s.repo.GetBackupStatus(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	return s.assemble(ctx, st)
}

func (s *Service) assemble(ctx context.Context, st *BackupStatus) (*BackupRecord, error) {
	video, err := s.repo.GetVideo(ctx, st.VideoID)
	if err != nil {
		return nil, fmt.Errorf("get video %d: %w", st.VideoID, err)
	}
	if video == nil {
		s.logger.Warn("status without video", "video_id", st.VideoID)
		return nil, nil
	}

	streamer, err := s.repo.GetStreamer(ctx, video.StreamerLogin)
	if err != nil {
		return nil, fmt.Errorf("get streamer %s: %w", video.StreamerLogin, err)
	}
	if streamer == nil {
		s.logger.Warn("video without streamer", "video_id", video.ID, "login", video.StreamerLogin)
		return nil, nil
	}

	return &BackupRecord{Video: *video, Streamer: *streamer, Status: *st}, nil
}
