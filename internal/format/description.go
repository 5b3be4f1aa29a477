package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vodarchive/vodarchive/internal/catalog"
)

// Template tokens recognised by Description.
const (
	TokenTitle         = "$$video_title$$"
	TokenURL           = "$$video_url$$"
	TokenID            = "$$video_id$$"
	TokenDuration      = "$$video_duration$$"
	TokenPart          = "$$video_part$$"
	TokenTotalParts    = "$$video_total_parts$$"
	TokenStreamerName  = "$$video_streamer_name$$"
	TokenStreamerLogin = "$$video_streamer_login$$"
)

const (
	NoURL   = "<NO URL FOUND>"
	NoName  = "<NO NAME FOUND>"
	NoTitle = "<NO TITLE FOUND>"
)

// Description fills template for one part. Substitution is a single literal
// pass: replaced values are never expanded again and unknown tokens are kept.
func Description(rec catalog.BackupRecord, part, total int, template string) string {
	title := NoTitle
	if rec.Video.Title != nil {
		title = *rec.Video.Title
	}
	url := NoURL
	if rec.Video.URL != nil {
		url = *rec.Video.URL
	}
	name := NoName
	if rec.Streamer.DisplayName != "" {
		name = rec.Streamer.DisplayName
	}
	var seconds int64
	if rec.Video.Duration != nil {
		seconds = *rec.Video.Duration
	}

	r := strings.NewReplacer(
		TokenTitle, title,
		TokenURL, url,
		TokenID, strconv.FormatInt(rec.Video.ID, 10),
		TokenDuration, Clock(seconds),
		TokenPart, strconv.Itoa(part),
		TokenTotalParts, strconv.Itoa(total),
		TokenStreamerName, name,
		TokenStreamerLogin, rec.Streamer.Login,
	)
	return r.Replace(template)
}

// Clock formats a number of seconds as HH:MM:SS. Hours are not wrapped.
func Clock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
