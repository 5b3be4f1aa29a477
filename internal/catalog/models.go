package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Streamer is a channel on the source platform whose archives are backed up.
type Streamer struct {
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name,omitempty"`
	Watched         bool      `json:"watched"`
	YouTubeUser     string    `json:"youtube_user,omitempty"`
	PublicByDefault bool      `json:"public_by_default"`
	CreatedAt       time.Time `json:"created_at"`
}

// Video is an archived broadcast as reported by the source platform. Optional
// fields are nil when the platform did not provide them.
type Video struct {
	ID            int64      `json:"id"`
	StreamerLogin string     `json:"streamer_login"`
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	Duration      *int64     `json:"duration,omitempty"` // seconds
	URL           *string    `json:"url,omitempty"`
	ThumbnailURL  *string    `json:"thumbnail_url,omitempty"`
	Language      *string    `json:"language,omitempty"`
	ViewCount     *int64     `json:"view_count,omitempty"`
	DiscoveredAt  time.Time  `json:"discovered_at"`
}

const (
	StatePending  = "pending"
	StateBackedUp = "backed_up"
	StateFailed   = "failed"
)

// BackupStatus tracks the backup of one video.
type BackupStatus struct {
	VideoID    int64     `json:"video_id"`
	BackedUp   bool      `json:"backed_up"`
	Error      string    `json:"error,omitempty"`
	PlaylistID string    `json:"playlist_id,omitempty"`
	PartCount  int       `json:"part_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// State collapses the status row into pending, backed_up or failed.
func (s BackupStatus) State() string {
	switch {
	case s.BackedUp:
		return StateBackedUp
	case s.Error != "":
		return StateFailed
	default:
		return StatePending
	}
}

// BackupRecord is everything needed to label and upload one video. It is a
// plain value; callers pass the Repository explicitly to persist changes.
type BackupRecord struct {
	Video    Video        `json:"video"`
	Streamer Streamer     `json:"streamer"`
	Status   BackupStatus `json:"status"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NormalizeLogin returns the stable, lowercased form of a streamer login.
// A Caser is stateful, so one is built per call.
func NormalizeLogin(login string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(login))
}

func NewID() string {
	return uuid.NewString()
}

// StringPtr and Int64Ptr help build optional Video fields.
func StringPtr(s string) *string { return &s }

func Int64Ptr(v int64) *int64 { return &v }

func TimePtr(t time.Time) *time.Time { return &t }
