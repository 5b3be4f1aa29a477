package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vodarchive/vodarchive/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

type fakeSource struct {
	videos map[string][]Video
	errs   map[string]error
	calls  []string
}

func (f *fakeSource) ListVideos(ctx context.Context, login string) ([]Video, error) {
	f.calls = append(f.calls, login)
	if err := f.errs[login]; err != nil {
		return nil, err
	}
	return f.videos[login], nil
}

func TestService_AddStreamer(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	st, err := svc.AddStreamer(ctx, Streamer{Login: "  NoPixelVODs ", DisplayName: "NoPixel VODs", Watched: true})
	if err != nil {
		t.Fatalf("AddStreamer() error = %v", err)
	}
	if st.Login != "nopixelvods" {
		t.Errorf("Login = %q, want nopixelvods", st.Login)
	}

	got, err := repo.GetStreamer(ctx, "nopixelvods")
	if err != nil || got == nil {
		t.Fatalf("GetStreamer() = %v, %v", got, err)
	}
	if got.DisplayName != "NoPixel VODs" || !got.Watched {
		t.Errorf("stored streamer = %+v", got)
	}
	created := got.CreatedAt

	// Updating keeps the original creation time.
	if _, err := svc.AddStreamer(ctx, Streamer{Login: "NOPIXELVODS", Watched: false, PublicByDefault: true}); err != nil {
		t.Fatalf("AddStreamer() update error = %v", err)
	}
	got, _ = repo.GetStreamer(ctx, "nopixelvods")
	if got.Watched || !got.PublicByDefault {
		t.Errorf("updated streamer = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed from %v to %v", created, got.CreatedAt)
	}
}

func TestService_AddStreamer_EmptyLogin(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	if _, err := NewService(repo, nil, nil).AddStreamer(context.Background(), Streamer{Login: "   "}); err == nil {
		t.Error("AddStreamer() should reject an empty login")
	}
}

func TestService_SyncNewVideos(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	for _, s := range []*Streamer{
		{Login: "alpha", Watched: true},
		{Login: "beta", Watched: true},
		{Login: "gamma", Watched: false},
	} {
		if err := repo.UpsertStreamer(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	src := &fakeSource{
		videos: map[string][]Video{
			"alpha": {
				{ID: 20, Title: StringPtr("second")},
				{ID: 10, Title: StringPtr("first")},
			},
			"gamma": {{ID: 99}},
		},
		errs: map[string]error{"beta": errors.New("boom")},
	}
	svc := NewService(repo, src, nil)

	added, err := svc.SyncNewVideos(ctx)
	if err == nil {
		t.Error("expected the beta failure to be reported")
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if diff := cmp.Diff([]string{"alpha", "beta"}, src.calls); diff != "" {
		t.Errorf("listed streamers mismatch (-want +got):\n%s", diff)
	}

	// A second pass finds nothing new.
	delete(src.errs, "beta")
	added, err = svc.SyncNewVideos(ctx)
	if err != nil {
		t.Fatalf("second SyncNewVideos() error = %v", err)
	}
	if added != 0 {
		t.Errorf("second pass added = %d, want 0", added)
	}

	v, err := repo.GetVideo(ctx, 10)
	if err != nil || v == nil {
		t.Fatalf("GetVideo(10) = %v, %v", v, err)
	}
	if v.StreamerLogin != "alpha" {
		t.Errorf("StreamerLogin = %q, want alpha", v.StreamerLogin)
	}
	st, err := repo.GetBackupStatus(ctx, 10)
	if err != nil || st == nil {
		t.Fatalf("GetBackupStatus(10) = %v, %v", st, err)
	}
	if st.BackedUp || st.State() != StatePending {
		t.Errorf("new status = %+v, want pending", st)
	}
}

func TestService_SyncNewVideos_NoSource(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	added, err := NewService(repo, nil, nil).SyncNewVideos(context.Background())
	if err != nil || added != 0 {
		t.Errorf("SyncNewVideos() = %d, %v, want 0, nil", added, err)
	}
}

func TestService_PendingBackups(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	if err := repo.UpsertStreamer(ctx, &Streamer{Login: "alpha", DisplayName: "Alpha", Watched: true}); err != nil {
		t.Fatal(err)
	}

	created := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, v := range []*Video{
		{ID: 30, StreamerLogin: "alpha", Title: StringPtr("c"), CreatedAt: &created},
		{ID: 10, StreamerLogin: "alpha", Title: StringPtr("a"), CreatedAt: &created, Duration: Int64Ptr(3600)},
		{ID: 20, StreamerLogin: "alpha", Title: StringPtr("b")},
		{ID: 40, StreamerLogin: "orphan", Title: StringPtr("d")},
	} {
		if _, err := repo.InsertVideo(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.UpdateBackupStatus(ctx, &BackupStatus{VideoID: 20, BackedUp: true, PartCount: 1}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateBackupStatus(ctx, &BackupStatus{VideoID: 30, Error: "previous failure"}); err != nil {
		t.Fatal(err)
	}

	svc := NewService(repo, nil, nil)
	records, err := svc.PendingBackups(ctx, 10)
	if err != nil {
		t.Fatalf("PendingBackups() error = %v", err)
	}

	var ids []int64
	for _, r := range records {
		ids = append(ids, r.Video.ID)
	}
	if diff := cmp.Diff([]int64{10, 30}, ids); diff != "" {
		t.Errorf("pending ids mismatch (-want +got):\n%s", diff)
	}

	first := records[0]
	if first.Streamer.DisplayName != "Alpha" {
		t.Errorf("streamer = %+v", first.Streamer)
	}
	if first.Video.CreatedAt == nil || !first.Video.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", first.Video.CreatedAt, created)
	}
	if first.Video.Duration == nil || *first.Video.Duration != 3600 {
		t.Errorf("Duration = %v, want 3600", first.Video.Duration)
	}

	limited, err := svc.PendingBackups(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Video.ID != 10 {
		t.Errorf("PendingBackups(limit 1) = %+v", limited)
	}
}

func TestService_Record(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	repo.UpsertStreamer(ctx, &Streamer{Login: "alpha", Watched: true})
	repo.InsertVideo(ctx, &Video{ID: 5, StreamerLogin: "alpha", Title: StringPtr("x")})

	svc := NewService(repo, nil, nil)
	rec, err := svc.Record(ctx, 5)
	if err != nil || rec == nil {
		t.Fatalf("Record(5) = %v, %v", rec, err)
	}
	if *rec.Video.Title != "x" {
		t.Errorf("title = %q", *rec.Video.Title)
	}

	rec, err = svc.Record(ctx, 6)
	if err != nil || rec != nil {
		t.Errorf("Record(6) = %v, %v, want nil, nil", rec, err)
	}
}

func TestRepository_StatusStates(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	for id := int64(1); id <= 4; id++ {
		if _, err := repo.InsertVideo(ctx, &Video{ID: id, StreamerLogin: "a"}); err != nil {
			t.Fatal(err)
		}
	}
	repo.UpdateBackupStatus(ctx, &BackupStatus{VideoID: 1, BackedUp: true, PlaylistID: "PL1", PartCount: 3})
	repo.UpdateBackupStatus(ctx, &BackupStatus{VideoID: 2, Error: "tool error"})

	counts, err := repo.CountByState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{StateBackedUp: 1, StateFailed: 1, StatePending: 2}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountByState() mismatch (-want +got):\n%s", diff)
	}

	failed, err := repo.ListStatuses(ctx, StateFailed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].VideoID != 2 || failed[0].Error != "tool error" {
		t.Errorf("failed statuses = %+v", failed)
	}

	done, _ := repo.GetBackupStatus(ctx, 1)
	if done.PlaylistID != "PL1" || done.PartCount != 3 || done.State() != StateBackedUp {
		t.Errorf("backed up status = %+v", done)
	}

	if _, err := repo.ListStatuses(ctx, "bogus", 10); err == nil {
		t.Error("ListStatuses() should reject an unknown state")
	}
	if err := repo.UpdateBackupStatus(ctx, &BackupStatus{VideoID: 404}); err == nil {
		t.Error("UpdateBackupStatus() should fail for an unknown video")
	}
}

func TestRepository_InsertVideoTwice(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	created, err := repo.InsertVideo(ctx, &Video{ID: 1, StreamerLogin: "a", Title: StringPtr("first")})
	if err != nil || !created {
		t.Fatalf("first insert = %v, %v", created, err)
	}
	repo.UpdateBackupStatus(ctx, &BackupStatus{VideoID: 1, BackedUp: true})

	created, err = repo.InsertVideo(ctx, &Video{ID: 1, StreamerLogin: "a", Title: StringPtr("second")})
	if err != nil || created {
		t.Fatalf("second insert = %v, %v, want false, nil", created, err)
	}

	v, _ := repo.GetVideo(ctx, 1)
	if *v.Title != "first" {
		t.Errorf("title overwritten: %q", *v.Title)
	}
	st, _ := repo.GetBackupStatus(ctx, 1)
	if !st.BackedUp {
		t.Error("status reset by duplicate insert")
	}
}

func TestNormalizeLogin(t *testing.T) {
	tests := map[string]string{
		"NoPixelVODs":   "nopixelvods",
		"  spaced  ":    "spaced",
		"already_lower": "already_lower",
		"":              "",
	}
	for in, want := range tests {
		if got := NormalizeLogin(in); got != want {
			t.Errorf("NormalizeLogin(%q) = %q, want %q", in, got, want)
		}
	}
}
