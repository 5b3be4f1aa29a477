package upload

import (
	"context"
	"fmt"
	"net/url"
)

type httpPlaylists struct {
	client *HTTPClient
}

// FindOrCreate relies on the host treating POST /playlists as
// get-or-create keyed on (channel, title).
func (s *httpPlaylists) FindOrCreate(ctx context.Context, channel, title string, privacy Privacy) (*Playlist, error) {
	var result Playlist
	err := s.client.postJSON(ctx, "/playlists", map[string]string{
		"channel": channel,
		"title":   title,
		"privacy": string(privacy),
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("upload api: playlist %q returned no id", title)
	}

	s.client.logger.Debug("resolved playlist",
		"playlist_id", result.ID,
		"title", title,
		"created", result.Created,
	)
	return &result, nil
}

func (s *httpPlaylists) AddItem(ctx context.Context, playlistID, videoID string) error {
	path := fmt.Sprintf("/playlists/%s/items", url.PathEscape(playlistID))
	return s.client.postJSON(ctx, path, map[string]string{"video_id": videoID}, nil)
}
