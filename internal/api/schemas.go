package api

import (
	"time"

	"github.com/vodarchive/vodarchive/internal/backup"
	"github.com/vodarchive/vodarchive/internal/catalog"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State     string                `json:"state"`
	LastError string                `json:"last_error,omitempty"`
	Streamers int                   `json:"streamers"`
	Videos    map[string]int        `json:"videos"`
	LastPass  *backup.PassStats     `json:"last_pass,omitempty"`
	FFmpeg    *FFmpegStatusResponse `json:"ffmpeg,omitempty"`
}

type FFmpegStatusResponse struct {
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type AddStreamerRequest struct {
	Login           string `json:"login"`
	DisplayName     string `json:"display_name,omitempty"`
	Watched         *bool  `json:"watched,omitempty"`
	YouTubeUser     string `json:"youtube_user,omitempty"`
	PublicByDefault bool   `json:"public_by_default"`
}

type StreamerResponse struct {
	Login           string `json:"login"`
	DisplayName     string `json:"display_name,omitempty"`
	Watched         bool   `json:"watched"`
	YouTubeUser     string `json:"youtube_user,omitempty"`
	PublicByDefault bool   `json:"public_by_default"`
	CreatedAt       string `json:"created_at"`
}

type StreamersResponse struct {
	Streamers []StreamerResponse `json:"streamers"`
}

type VideoStatusResponse struct {
	VideoID    int64  `json:"video_id"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
	PlaylistID string `json:"playlist_id,omitempty"`
	PartCount  int    `json:"part_count"`
	UpdatedAt  string `json:"updated_at"`
}

type VideosResponse struct {
	Videos []VideoStatusResponse `json:"videos"`
}

type RunnerResponse struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func StreamerToResponse(s *catalog.Streamer) StreamerResponse {
	return StreamerResponse{
		Login:           s.Login,
		DisplayName:     s.DisplayName,
		Watched:         s.Watched,
		YouTubeUser:     s.YouTubeUser,
		PublicByDefault: s.PublicByDefault,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
	}
}

func StatusToResponse(s *catalog.BackupStatus) VideoStatusResponse {
	return VideoStatusResponse{
		VideoID:    s.VideoID,
		State:      s.State(),
		Error:      s.Error,
		PlaylistID: s.PlaylistID,
		PartCount:  s.PartCount,
		UpdatedAt:  s.UpdatedAt.Format(time.RFC3339),
	}
}
