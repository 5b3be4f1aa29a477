// Package pipeline runs the external ffmpeg tool used to cut and join
// recordings.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	DefaultBinary = "ffmpeg"
)

// FFmpeg is the contract the segmenter needs from the transcoding tool.
type FFmpeg interface {
	// Split cuts args.Input into consecutive parts of roughly
	// args.SegmentTime each and writes an m3u8 list of them to args.ListPath.
	Split(ctx context.Context, args SplitArgs) error

	// Concat joins the files named in a concat demuxer list into outputPath
	// without re-encoding.
	Concat(ctx context.Context, listPath, outputPath string) error

	// Version returns the first line of `ffmpeg -version`.
	Version(ctx context.Context) (string, error)
}

// SplitArgs describes one segment muxer invocation.
type SplitArgs struct {
	Input         string
	SegmentTime   time.Duration
	OutputPattern string // e.g. /dir/1234_%03d.mp4
	ListPath      string // m3u8 list written by the muxer
}

// RunResult is the structured outcome of one ffmpeg process.
type RunResult struct {
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ExitError reports an ffmpeg process that could not be started or exited non-zero.
type ExitError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.Err != nil && e.ExitCode < 0 {
		return fmt.Sprintf("ffmpeg %s failed to run: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s exited %d: %s", e.Op, e.ExitCode, truncate(strings.TrimSpace(e.Stderr), 512))
}

func (e *ExitError) Unwrap() error { return e.Err }

// SubprocessFFmpeg is the production implementation of FFmpeg.
type SubprocessFFmpeg struct {
	binary string
	logger *slog.Logger
}

// NewSubprocessFFmpeg resolves the ffmpeg binary. An empty binary means
// "ffmpeg" from PATH.
func NewSubprocessFFmpeg(binary string, logger *slog.Logger) (*SubprocessFFmpeg, error) {
	if binary == "" {
		binary = DefaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg %q: %w", binary, err)
	}
	return &SubprocessFFmpeg{binary: path, logger: logger}, nil
}

func (f *SubprocessFFmpeg) Split(ctx context.Context, args SplitArgs) error {
	return f.run(ctx, "split", nil, buildSplitArgs(args)...)
}

func (f *SubprocessFFmpeg) Concat(ctx context.Context, listPath, outputPath string) error {
	return f.run(ctx, "concat", nil, buildConcatArgs(listPath, outputPath)...)
}

func (f *SubprocessFFmpeg) Version(ctx context.Context) (string, error) {
	var stdout bytes.Buffer
	if err := f.run(ctx, "version", &stdout, "-version"); err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}

// buildSplitArgs mirrors:
// ffmpeg -i in.mp4 -c copy -map 0 -segment_time 00:20:00 -reset_timestamps 1
// -segment_list out.m3u8 -segment_list_type m3u8 -avoid_negative_ts 1 -f segment out_%03d.mp4
func buildSplitArgs(a SplitArgs) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", a.Input,
		"-c", "copy",
		"-map", "0",
		"-segment_time", clock(a.SegmentTime),
		"-reset_timestamps", "1",
		"-segment_list", a.ListPath,
		"-segment_list_type", "m3u8",
		"-avoid_negative_ts", "1",
		"-f", "segment",
		a.OutputPattern,
	}
}

// buildConcatArgs mirrors: ffmpeg -f concat -safe 0 -i join.txt -c copy join.mp4
func buildConcatArgs(listPath, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
}

func (f *SubprocessFFmpeg) run(ctx context.Context, op string, stdout io.Writer, args ...string) error {
	result, err := f.exec(ctx, stdout, args...)
	if err != nil {
		return &ExitError{Op: op, ExitCode: result.ExitCode, Stderr: result.StderrTail, Err: err}
	}
	if !result.IsSuccess() {
		return &ExitError{Op: op, ExitCode: result.ExitCode, Stderr: result.StderrTail}
	}
	return nil
}

// exec is the core subprocess execution helper.
func (f *SubprocessFFmpeg) exec(ctx context.Context, stdout io.Writer, args ...string) (RunResult, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, f.binary, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}

	f.logger.Debug("executing ffmpeg", "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{StderrTail: stderrBuf.String(), Duration: elapsed}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, err
		}
	}

	if result.ExitCode != 0 {
		f.logger.Warn("ffmpeg command failed",
			"exit_code", result.ExitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(result.StderrTail, 512),
		)
	} else {
		f.logger.Debug("ffmpeg command succeeded", "duration_ms", elapsed.Milliseconds())
	}
	return result, nil
}

// clock formats d as HH:MM:SS; hours are not wrapped at 24.
func clock(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
