package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/vodarchive/vodarchive/internal/pipeline"
)

const (
	ManifestName   = "output.m3u8"
	JoinListName   = "join.txt"
	JoinOutputName = "join.mp4"
)

// Segmenter splits a recording into parts no longer than the soft cap and
// folds a short trailing remainder into the part before it.
type Segmenter struct {
	ffmpeg pipeline.FFmpeg
	logger *slog.Logger
}

func New(ffmpeg pipeline.FFmpeg, logger *slog.Logger) *Segmenter {
	return &Segmenter{ffmpeg: ffmpeg, logger: logger}
}

// ValidateCaps rejects non-positive caps and a soft cap above the hard cap.
func ValidateCaps(softCap, hardCap time.Duration) error {
	switch {
	case softCap <= 0:
		return configErr("validate caps", fmt.Errorf("soft cap must be positive, got %v", softCap))
	case hardCap <= 0:
		return configErr("validate caps", fmt.Errorf("hard cap must be positive, got %v", hardCap))
	case softCap > hardCap:
		return configErr("validate caps", fmt.Errorf("soft cap %v exceeds hard cap %v", softCap, hardCap))
	}
	return nil
}

// Split cuts sourcePath into parts in its own directory and returns the part
// paths in playback order. The source file is removed on success.
//
// Intermediate files are not guaranteed to be cleaned up when an error is
// returned; only the join list and join output are removed best-effort.
func (s *Segmenter) Split(ctx context.Context, sourcePath string, softCap, hardCap time.Duration) ([]string, error) {
	if err := ValidateCaps(softCap, hardCap); err != nil {
		return nil, err
	}
	if s.ffmpeg == nil {
		return nil, toolErr("split", errors.New("ffmpeg not configured"))
	}

	source, err := canonical(sourcePath)
	if err != nil {
		return nil, ioErr("resolve source", sourcePath, err)
	}
	dir := filepath.Dir(source)
	listPath := filepath.Join(dir, ManifestName)
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	pattern := filepath.Join(dir, stem+"_%03d.mp4")

	s.logger.Info("splitting video",
		"source", source,
		"soft_cap", softCap.String(),
		"hard_cap", hardCap.String(),
	)

	err = s.ffmpeg.Split(ctx, pipeline.SplitArgs{
		Input:         source,
		SegmentTime:   softCap,
		OutputPattern: pattern,
		ListPath:      listPath,
	})
	if err != nil {
		return nil, toolErr("split", err)
	}

	segments, err := readSegments(dir, listPath)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(segments))
	for i, seg := range segments {
		paths[i] = seg.Path
	}

	plan := PlanJoin(segments, hardCap)
	if len(segments) >= 2 {
		n := len(segments)
		attrs := []any{
			"second_last_s", segments[n-2].Duration,
			"last_s", segments[n-1].Duration,
			"joined_s", plan.MergedDuration,
			"hard_cap_s", hardCap.Seconds(),
		}
		if plan.ShouldJoin {
			s.logger.Info("joining last two parts", attrs...)
			if err := s.joinLastTwo(ctx, dir, segments[n-2].Path, segments[n-1].Path, listPath); err != nil {
				return nil, err
			}
			paths = paths[:n-1]
		} else {
			s.logger.Info("not joining last two parts", attrs...)
		}
	}

	if err := os.Remove(source); err != nil {
		return nil, ioErr("remove source", source, err)
	}

	s.logger.Info("split video", "source", source, "parts", len(paths))
	return paths, nil
}

// joinLastTwo concatenates the final two parts into the penultimate part's path.
func (s *Segmenter) joinLastTwo(ctx context.Context, dir, secondLast, last, listPath string) (err error) {
	joinList := filepath.Join(dir, JoinListName)
	joinOutput := filepath.Join(dir, JoinOutputName)

	defer func() {
		if err == nil {
			return
		}
		for _, p := range []string{joinList, joinOutput} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				s.logger.Warn("cleanup after failed join", "path", p, "error", rmErr)
			}
		}
	}()

	// The final part is listed first, followed by the penultimate one.
	content := fmt.Sprintf("file %s\nfile %s", concatQuote(last), concatQuote(secondLast))
	if err := renameio.WriteFile(joinList, []byte(content), 0o644); err != nil {
		return ioErr("write join list", joinList, err)
	}

	if err := s.ffmpeg.Concat(ctx, joinList, joinOutput); err != nil {
		return toolErr("concat", err)
	}

	for _, p := range []string{secondLast, last, joinList, listPath} {
		if err := os.Remove(p); err != nil {
			return ioErr("remove", p, err)
		}
	}

	if err := os.Rename(joinOutput, secondLast); err != nil {
		return ioErr("rename join output", joinOutput, err)
	}
	return nil
}

// readSegments loads the segment list and resolves entries against dir.
func readSegments(dir, listPath string) ([]Segment, error) {
	data, err := os.ReadFile(listPath)
	if err != nil {
		return nil, ioErr("read manifest", listPath, err)
	}

	m, err := ParseManifest(string(data))
	if err != nil {
		return nil, err
	}
	if len(m.Segments) == 0 {
		return nil, parseErr("parse manifest", fmt.Errorf("%s lists no segments", listPath))
	}

	segments := make([]Segment, len(m.Segments))
	for i, seg := range m.Segments {
		p := seg.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		segments[i] = Segment{Path: filepath.Clean(p), Duration: seg.Duration}
	}
	return segments, nil
}

// canonical resolves symlinks in the directory of path but keeps its file
// name, so a linked source is split next to the link and the link is removed.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))
	if _, err := os.Stat(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// concatQuote quotes a path for the ffmpeg concat demuxer.
func concatQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
