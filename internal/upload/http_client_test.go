package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeHost is an in-memory video host.
type fakeHost struct {
	mu        sync.Mutex
	server    *httptest.Server
	metadata  []createVideoRequest
	uploads   map[string][]byte
	playlists map[string]string // channel/title -> id
	items     map[string][]string
	auth      []string
}

func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	h := &fakeHost{
		uploads:   map[string][]byte{},
		playlists: map[string]string{},
		items:     map[string][]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /videos", func(w http.ResponseWriter, r *http.Request) {
		var req createVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.auth = append(h.auth, r.Header.Get("Authorization"))
		h.metadata = append(h.metadata, req)
		id := "v" + string(rune('0'+len(h.metadata)))
		h.mu.Unlock()
		json.NewEncoder(w).Encode(createVideoResponse{ID: id, UploadURL: h.server.URL + "/upload/" + id})
	})
	mux.HandleFunc("PUT /upload/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		h.mu.Lock()
		h.auth = append(h.auth, r.Header.Get("Authorization"))
		h.uploads[r.PathValue("id")] = body
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /playlists", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		key := req["channel"] + "/" + req["title"]
		h.mu.Lock()
		id, ok := h.playlists[key]
		if !ok {
			id = "pl" + string(rune('0'+len(h.playlists)))
			h.playlists[key] = id
		}
		h.mu.Unlock()
		json.NewEncoder(w).Encode(Playlist{ID: id, Title: req["title"], Created: !ok})
	})
	mux.HandleFunc("POST /playlists/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		h.mu.Lock()
		h.items[r.PathValue("id")] = append(h.items[r.PathValue("id")], req["video_id"])
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "part.mp4")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHTTPClient_UploadVideo(t *testing.T) {
	host := newFakeHost(t)
	client := NewHTTPClient(host.server.URL+"/", "up-token", testLogger())

	id, err := client.UploadVideo(context.Background(), Video{
		Path:        writeFile(t, "video-bytes"),
		Title:       "[2021-01-01] Stream",
		Description: "desc",
		Tags:        []string{"vod"},
		Privacy:     PrivacyUnlisted,
		Channel:     "Archive",
	})
	if err != nil {
		t.Fatalf("UploadVideo() error = %v", err)
	}
	if id != "v1" {
		t.Errorf("id = %q, want v1", id)
	}

	want := []createVideoRequest{{
		Title:       "[2021-01-01] Stream",
		Description: "desc",
		Tags:        []string{"vod"},
		Privacy:     PrivacyUnlisted,
		Channel:     "Archive",
	}}
	if diff := cmp.Diff(want, host.metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if string(host.uploads["v1"]) != "video-bytes" {
		t.Errorf("uploaded body = %q", host.uploads["v1"])
	}
	for _, a := range host.auth {
		if a != "Bearer up-token" {
			t.Errorf("Authorization = %q", a)
		}
	}
}

func TestHTTPClient_UploadVideo_MissingFile(t *testing.T) {
	host := newFakeHost(t)
	client := NewHTTPClient(host.server.URL, "", testLogger())

	_, err := client.UploadVideo(context.Background(), Video{Path: filepath.Join(t.TempDir(), "nope.mp4")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(host.metadata) != 0 {
		t.Error("metadata should not be sent when the file is missing")
	}
}

func TestHTTPClient_UploadVideo_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"quota exceeded"}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "", testLogger()).UploadVideo(context.Background(), Video{Path: writeFile(t, "x")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.IsRetryable() {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	if !(&APIError{StatusCode: http.StatusServiceUnavailable}).IsRetryable() {
		t.Fatal("expected 5xx error to be retryable")
	}
	if (&APIError{StatusCode: http.StatusBadRequest}).IsRetryable() {
		t.Fatal("expected 4xx error to be permanent")
	}
}

func TestHTTPPlaylists_FindOrCreateAndAddItem(t *testing.T) {
	host := newFakeHost(t)
	playlists := NewHTTPClient(host.server.URL, "", testLogger()).Playlists()
	ctx := context.Background()

	first, err := playlists.FindOrCreate(ctx, "Archive", "[2021-01-01] Stream", PrivacyPublic)
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	if !first.Created {
		t.Error("first call should create the playlist")
	}

	again, err := playlists.FindOrCreate(ctx, "Archive", "[2021-01-01] Stream", PrivacyPublic)
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	if again.ID != first.ID || again.Created {
		t.Errorf("second call = %+v, want existing %q", again, first.ID)
	}

	other, err := playlists.FindOrCreate(ctx, "Other", "[2021-01-01] Stream", PrivacyPublic)
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == first.ID {
		t.Error("playlists on different channels should be distinct")
	}

	for _, vid := range []string{"v1", "v2"} {
		if err := playlists.AddItem(ctx, first.ID, vid); err != nil {
			t.Fatalf("AddItem() error = %v", err)
		}
	}
	if diff := cmp.Diff([]string{"v1", "v2"}, host.items[first.ID]); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestStubClient(t *testing.T) {
	var c Client = NewStubClient(testLogger())
	id, err := c.UploadVideo(context.Background(), Video{Title: "t"})
	if !errors.Is(err, ErrUploadsDisabled) || id != "" {
		t.Fatalf("UploadVideo() = %q, %v, want ErrUploadsDisabled", id, err)
	}
	pl, err := c.Playlists().FindOrCreate(context.Background(), "c", "t", PrivacyPrivate)
	if err != nil || pl.ID == "" {
		t.Fatalf("FindOrCreate() = %+v, %v", pl, err)
	}
	if err := c.Playlists().AddItem(context.Background(), pl.ID, "v1"); err != nil {
		t.Fatal(err)
	}
}

func TestEnabled(t *testing.T) {
	if Enabled(NewStubClient(testLogger())) {
		t.Error("Enabled(stub) = true")
	}
	if !Enabled(NewHTTPClient("http://127.0.0.1:1", "tok", testLogger())) {
		t.Error("Enabled(http) = false")
	}
	if Enabled(nil) {
		t.Error("Enabled(nil) = true")
	}
}
