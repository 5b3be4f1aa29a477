package upload

import (
	"context"
	"errors"
	"log/slog"
)

// ErrUploadsDisabled is returned by StubClient uploads. No video host is
// configured, so nothing can be published.
var ErrUploadsDisabled = errors.New("uploads disabled: no video host configured")

// Privacy of an uploaded video or playlist.
type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

// Video describes one file to publish.
type Video struct {
	Path        string
	Title       string
	Description string
	Tags        []string
	Privacy     Privacy
	Channel     string
}

type Playlist struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Created bool   `json:"created"`
}

type Client interface {
	UploadVideo(ctx context.Context, v Video) (string, error)
	Playlists() PlaylistService
}

type PlaylistService interface {
	// FindOrCreate returns the playlist titled title on channel, creating it
	// with the given privacy when it does not exist yet.
	FindOrCreate(ctx context.Context, channel, title string, privacy Privacy) (*Playlist, error)
	AddItem(ctx context.Context, playlistID, videoID string) error
}

// Enabled reports whether c publishes anywhere.
func Enabled(c Client) bool {
	_, stub := c.(*StubClient)
	return c != nil && !stub
}

// StubClient logs what it would publish. Uploads fail with ErrUploadsDisabled
// so a video is never recorded as backed up without reaching a host.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) UploadVideo(ctx context.Context, v Video) (string, error) {
	c.logger.Info("upload stub: video upload requested",
		"path", v.Path,
		"title", v.Title,
		"channel", v.Channel,
		"privacy", v.Privacy,
	)
	return "", ErrUploadsDisabled
}

func (c *StubClient) Playlists() PlaylistService {
	return c
}

func (c *StubClient) FindOrCreate(ctx context.Context, channel, title string, privacy Privacy) (*Playlist, error) {
	c.logger.Info("upload stub: playlist get-or-create requested", "channel", channel, "title", title)
	return &Playlist{ID: "stub-playlist-id", Title: title, Created: true}, nil
}

func (c *StubClient) AddItem(ctx context.Context, playlistID, videoID string) error {
	c.logger.Info("upload stub: playlist item requested", "playlist_id", playlistID, "video_id", videoID)
	return nil
}
