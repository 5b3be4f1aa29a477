// Package format builds the upload title, playlist title and description of
// each part of a backed up video.
package format

import (
	"fmt"
	"unicode/utf8"

	"github.com/vodarchive/vodarchive/internal/catalog"
)

const ellipsis = "..."

// TitleLimits are the platform title constraints. All lengths count Unicode
// codepoints.
type TitleLimits struct {
	MaxLength int

	// WorstCasePrefixLength is the longest "[YYYY-MM-DD][Part NN/MM]" prefix
	// without its trailing separator.
	WorstCasePrefixLength int
}

var DefaultTitleLimits = TitleLimits{
	MaxLength:             100,
	WorstCasePrefixLength: 24,
}

// Budget is the number of codepoints available to the title body. It does not
// depend on the actual part count, so every part of a video truncates alike.
func (l TitleLimits) Budget() int {
	return l.MaxLength - l.WorstCasePrefixLength - 1
}

// budgetFor is Budget shrunk by the extra digits of a part tag once total
// no longer fits in two.
func (l TitleLimits) budgetFor(total int) int {
	extra := 0
	for n := total; n > 99; n /= 10 {
		extra += 2
	}
	return l.Budget() - extra
}

// Title formats the title of part `part` of `total` with DefaultTitleLimits.
func Title(rec catalog.BackupRecord, part, total int) (string, error) {
	return DefaultTitleLimits.Title(rec, part, total)
}

// PlaylistTitle formats the name of the playlist that collects all parts.
func PlaylistTitle(rec catalog.BackupRecord) (string, error) {
	return DefaultTitleLimits.PlaylistTitle(rec)
}

// Title returns "[YYYY-MM-DD][Part NN/MM] body" for multi-part videos and
// "[YYYY-MM-DD] body" for single-part ones.
func (l TitleLimits) Title(rec catalog.BackupRecord, part, total int) (string, error) {
	date, err := dateTag(rec)
	if err != nil {
		return "", err
	}
	title, err := rawTitle(rec)
	if err != nil {
		return "", err
	}

	prefix := date + " "
	if total > 1 {
		prefix = fmt.Sprintf("%s[Part %02d/%02d] ", date, part, total)
	}
	return prefix + capTitle(title, l.budgetFor(total)), nil
}

// PlaylistTitle returns "[YYYY-MM-DD] body", capped as a whole to the body
// budget.
func (l TitleLimits) PlaylistTitle(rec catalog.BackupRecord) (string, error) {
	date, err := dateTag(rec)
	if err != nil {
		return "", err
	}
	title, err := rawTitle(rec)
	if err != nil {
		return "", err
	}
	return capTitle(date+" "+title, l.Budget()), nil
}

// capTitle shortens title to budget codepoints, cutting on codepoint
// boundaries and appending an ellipsis.
func capTitle(title string, budget int) string {
	if utf8.RuneCountInString(title) <= budget {
		return title
	}
	keep := budget - utf8.RuneCountInString(ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(title)
	return string(runes[:keep]) + ellipsis
}

func dateTag(rec catalog.BackupRecord) (string, error) {
	if rec.Video.CreatedAt == nil {
		return "", &MissingFieldError{VideoID: rec.Video.ID, Field: "created_at"}
	}
	t := rec.Video.CreatedAt.UTC()
	return fmt.Sprintf("[%04d-%02d-%02d]", t.Year(), int(t.Month()), t.Day()), nil
}

func rawTitle(rec catalog.BackupRecord) (string, error) {
	if rec.Video.Title == nil {
		return "", &MissingFieldError{VideoID: rec.Video.ID, Field: "title"}
	}
	return *rec.Video.Title, nil
}
