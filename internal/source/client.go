// Package source talks to the streaming platform that hosts the original
// broadcasts: it lists a streamer's archives and downloads them.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/vodarchive/vodarchive/internal/catalog"
	"github.com/vodarchive/vodarchive/internal/metrics"
)

const (
	listTimeout = 60 * time.Second
	pageSize    = 100
	maxPages    = 50
)

// APIError is a non-2xx response from the platform API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source api: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Client is an HTTP client for the platform API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. Downloads can take hours, so the underlying
// http.Client has no overall timeout; listing calls bound themselves.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type apiVideo struct {
	ID           string `json:"id"`
	UserLogin    string `json:"user_login"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CreatedAt    string `json:"created_at"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	ViewCount    *int64 `json:"view_count"`
	Language     string `json:"language"`
	Duration     string `json:"duration"`
}

type listResponse struct {
	Data       []apiVideo `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

// ListVideos returns every archived broadcast of login, following pagination.
func (c *Client) ListVideos(ctx context.Context, login string) ([]catalog.Video, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	var videos []catalog.Video
	cursor := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("user_login", login)
		q.Set("type", "archive")
		q.Set("first", strconv.Itoa(pageSize))
		if cursor != "" {
			q.Set("after", cursor)
		}

		var resp listResponse
		if err := c.getJSON(ctx, "/videos?"+q.Encode(), &resp); err != nil {
			return nil, err
		}

		for _, av := range resp.Data {
			v, err := av.toVideo()
			if err != nil {
				c.logger.Warn("skipping malformed video", "login", login, "id", av.ID, "error", err)
				continue
			}
			videos = append(videos, v)
		}

		cursor = resp.Pagination.Cursor
		if cursor == "" || len(resp.Data) == 0 {
			break
		}
	}

	c.logger.Debug("listed videos", "login", login, "count", len(videos))
	return videos, nil
}

// Download streams the recording of videoID into <dir>/<id>.mp4. The file
// only appears under its final name once fully written.
func (c *Client) Download(ctx context.Context, videoID int64, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	path := filepath.Join(dir, strconv.FormatInt(videoID, 10)+".mp4")

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/videos/%d/download", videoID))
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("create pending file: %w", err)
	}
	defer pf.Cleanup()

	n, err := io.Copy(pf, resp.Body)
	metrics.DownloadedBytes.Add(float64(n))
	if err != nil {
		return "", fmt.Errorf("download video %d: %w", videoID, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return "", fmt.Errorf("download video %d: got %d of %d bytes", videoID, n, resp.ContentLength)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("finalize download: %w", err)
	}

	c.logger.Info("downloaded video",
		"video_id", videoID,
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > 4096 {
			body = body[:4096]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (av apiVideo) toVideo() (catalog.Video, error) {
	id, err := strconv.ParseInt(av.ID, 10, 64)
	if err != nil {
		return catalog.Video{}, fmt.Errorf("invalid id %q: %w", av.ID, err)
	}

	v := catalog.Video{
		ID:            id,
		StreamerLogin: catalog.NormalizeLogin(av.UserLogin),
		Title:         optional(av.Title),
		Description:   optional(av.Description),
		URL:           optional(av.URL),
		ThumbnailURL:  optional(av.ThumbnailURL),
		Language:      optional(av.Language),
		ViewCount:     av.ViewCount,
	}

	if av.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, av.CreatedAt)
		if err != nil {
			return catalog.Video{}, fmt.Errorf("invalid created_at %q: %w", av.CreatedAt, err)
		}
		t = t.UTC()
		v.CreatedAt = &t
	}

	// Durations look like "3h2m1s", which time.ParseDuration accepts.
	if av.Duration != "" {
		d, err := time.ParseDuration(av.Duration)
		if err != nil {
			return catalog.Video{}, fmt.Errorf("invalid duration %q: %w", av.Duration, err)
		}
		secs := int64(d / time.Second)
		v.Duration = &secs
	}
	return v, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
