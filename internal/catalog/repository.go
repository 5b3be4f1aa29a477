package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	UpsertStreamer(ctx context.Context, s *Streamer) error
	GetStreamer(ctx context.Context, login string) (*Streamer, error)
	ListStreamers(ctx context.Context) ([]*Streamer, error)
	ListWatchedStreamers(ctx context.Context, limit int) ([]*Streamer, error)

	// InsertVideo stores a newly discovered video together with a pending
	// status row. It reports false if the video was already known.
	InsertVideo(ctx context.Context, v *Video) (bool, error)
	GetVideo(ctx context.Context, id int64) (*Video, error)

	GetBackupStatus(ctx context.Context, videoID int64) (*BackupStatus, error)
	ListPendingStatuses(ctx context.Context, limit int) ([]*BackupStatus, error)
	ListStatuses(ctx context.Context, state string, limit int) ([]*BackupStatus, error)
	UpdateBackupStatus(ctx context.Context, s *BackupStatus) error
	SetInProgress(ctx context.Context, videoID int64, inProgress bool) error
	CountByState(ctx context.Context) (map[string]int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const streamerColumns = `login, display_name, watched, youtube_user, public_by_default, created_at`

func (r *SQLiteRepository) UpsertStreamer(ctx context.Context, s *Streamer) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO streamers (login, display_name, watched, youtube_user, public_by_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(login) DO UPDATE SET
			display_name = excluded.display_name,
			watched = excluded.watched,
			youtube_user = excluded.youtube_user,
			public_by_default = excluded.public_by_default
	`, s.Login, nullString(s.DisplayName), boolToInt(s.Watched), nullString(s.YouTubeUser),
		boolToInt(s.PublicByDefault), formatTime(s.CreatedAt))
	return err
}

func (r *SQLiteRepository) GetStreamer(ctx context.Context, login string) (*Streamer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE login = ?`, login)
	s, err := scanStreamer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListStreamers(ctx context.Context) ([]*Streamer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+streamerColumns+` FROM streamers ORDER BY login`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStreamers(rows)
}

func (r *SQLiteRepository) ListWatchedStreamers(ctx context.Context, limit int) ([]*Streamer, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+streamerColumns+` FROM streamers WHERE watched = 1 ORDER BY login LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStreamers(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStreamer(row scanner) (*Streamer, error) {
	var s Streamer
	var displayName, youtubeUser sql.NullString
	var watched, public int
	var createdAt string

	if err := row.Scan(&s.Login, &displayName, &watched, &youtubeUser, &public, &createdAt); err != nil {
		return nil, err
	}
	s.DisplayName = displayName.String
	s.YouTubeUser = youtubeUser.String
	s.Watched = watched == 1
	s.PublicByDefault = public == 1
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func scanStreamers(rows *sql.Rows) ([]*Streamer, error) {
	var streamers []*Streamer
	for rows.Next() {
		s, err := scanStreamer(rows)
		if err != nil {
			return nil, err
		}
		streamers = append(streamers, s)
	}
	return streamers, rows.Err()
}

func (r *SQLiteRepository) InsertVideo(ctx context.Context, v *Video) (bool, error) {
	if v.DiscoveredAt.IsZero() {
		v.DiscoveredAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO videos (id, streamer_login, title, description, created_at, duration, url,
			thumbnail_url, language, view_count, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, v.ID, v.StreamerLogin, v.Title, v.Description, nullTime(v.CreatedAt), v.Duration, v.URL,
		v.ThumbnailURL, v.Language, v.ViewCount, formatTime(v.DiscoveredAt))
	if err != nil {
		return false, fmt.Errorf("insert video %d: %w", v.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backup_status (video_id, backed_up, part_count, updated_at)
		VALUES (?, 0, 0, ?)
		ON CONFLICT(video_id) DO NOTHING
	`, v.ID, formatTime(v.DiscoveredAt)); err != nil {
		return false, fmt.Errorf("insert status %d: %w", v.ID, err)
	}

	return true, tx.Commit()
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id int64) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, streamer_login, title, description, created_at, duration, url,
			thumbnail_url, language, view_count, discovered_at
		FROM videos WHERE id = ?
	`, id)

	var v Video
	var title, description, createdAt, url, thumb, lang sql.NullString
	var duration, views sql.NullInt64
	var discoveredAt string

	err := row.Scan(&v.ID, &v.StreamerLogin, &title, &description, &createdAt, &duration, &url,
		&thumb, &lang, &views, &discoveredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.Title = stringPtr(title)
	v.Description = stringPtr(description)
	v.URL = stringPtr(url)
	v.ThumbnailURL = stringPtr(thumb)
	v.Language = stringPtr(lang)
	v.Duration = int64Ptr(duration)
	v.ViewCount = int64Ptr(views)
	if createdAt.Valid {
		t := parseTime(createdAt.String)
		v.CreatedAt = &t
	}
	v.DiscoveredAt = parseTime(discoveredAt)
	return &v, nil
}

const statusColumns = `video_id, backed_up, error, playlist_id, part_count, updated_at`

func (r *SQLiteRepository) GetBackupStatus(ctx context.Context, videoID int64) (*BackupStatus, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM backup_status WHERE video_id = ?`, videoID)
	s, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ListPendingStatuses returns status rows not yet backed up, oldest video first.
func (r *SQLiteRepository) ListPendingStatuses(ctx context.Context, limit int) ([]*BackupStatus, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+statusColumns+` FROM backup_status
		WHERE backed_up = 0 ORDER BY video_id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatuses(rows)
}

// ListStatuses filters by State; an empty state lists every row.
func (r *SQLiteRepository) ListStatuses(ctx context.Context, state string, limit int) ([]*BackupStatus, error) {
	if limit <= 0 {
		limit = 100
	}

	var where string
	switch state {
	case "":
		where = "1 = 1"
	case StatePending:
		where = "backed_up = 0 AND error IS NULL"
	case StateFailed:
		where = "backed_up = 0 AND error IS NOT NULL"
	case StateBackedUp:
		where = "backed_up = 1"
	default:
		return nil, fmt.Errorf("unknown backup state %q", state)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+statusColumns+` FROM backup_status
		WHERE `+where+` ORDER BY video_id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatuses(rows)
}

func (r *SQLiteRepository) UpdateBackupStatus(ctx context.Context, s *BackupStatus) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE backup_status
		SET backed_up = ?, error = ?, playlist_id = ?, part_count = ?, in_progress = 0, updated_at = ?
		WHERE video_id = ?
	`, boolToInt(s.BackedUp), nullString(s.Error), nullString(s.PlaylistID), s.PartCount,
		formatTime(s.UpdatedAt), s.VideoID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no backup status for video %d", s.VideoID)
	}
	return nil
}

func (r *SQLiteRepository) SetInProgress(ctx context.Context, videoID int64, inProgress bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE backup_status SET in_progress = ?, updated_at = ? WHERE video_id = ?
	`, boolToInt(inProgress), formatTime(time.Now().UTC()), videoID)
	return err
}

func (r *SQLiteRepository) CountByState(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{StatePending: 0, StateFailed: 0, StateBackedUp: 0}
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			CASE
				WHEN backed_up = 1 THEN 'backed_up'
				WHEN error IS NOT NULL THEN 'failed'
				ELSE 'pending'
			END AS state,
			COUNT(*)
		FROM backup_status GROUP BY state
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

func scanStatus(row scanner) (*BackupStatus, error) {
	var s BackupStatus
	var backedUp int
	var errMsg, playlistID sql.NullString
	var updatedAt string

	if err := row.Scan(&s.VideoID, &backedUp, &errMsg, &playlistID, &s.PartCount, &updatedAt); err != nil {
		return nil, err
	}
	s.BackedUp = backedUp == 1
	s.Error = errMsg.String
	s.PlaylistID = playlistID.String
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func scanStatuses(rows *sql.Rows) ([]*BackupStatus, error) {
	var statuses []*BackupStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
