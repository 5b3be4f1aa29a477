package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{127, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{time.Second, "00:00:01"},
		{time.Minute, "00:01:00"},
		{time.Hour, "01:00:00"},
		{time.Hour + time.Minute + time.Second, "01:01:01"},
		{5 * time.Second, "00:00:05"},
		{30 * time.Hour, "30:00:00"},
		{1500 * time.Millisecond, "00:00:01"},
	}
	for _, tt := range tests {
		if got := clock(tt.in); got != tt.want {
			t.Errorf("clock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildSplitArgs(t *testing.T) {
	got := buildSplitArgs(SplitArgs{
		Input:         "/videos/1234.mp4",
		SegmentTime:   20 * time.Minute,
		OutputPattern: "/videos/1234_%03d.mp4",
		ListPath:      "/videos/output.m3u8",
	})
	want := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", "/videos/1234.mp4",
		"-c", "copy",
		"-map", "0",
		"-segment_time", "00:20:00",
		"-reset_timestamps", "1",
		"-segment_list", "/videos/output.m3u8",
		"-segment_list_type", "m3u8",
		"-avoid_negative_ts", "1",
		"-f", "segment",
		"/videos/1234_%03d.mp4",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("buildSplitArgs() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildConcatArgs(t *testing.T) {
	got := buildConcatArgs("/videos/join.txt", "/videos/join.mp4")
	want := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", "/videos/join.txt",
		"-c", "copy",
		"/videos/join.mp4",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("buildConcatArgs() mismatch (-want +got):\n%s", diff)
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestNewSubprocessFFmpeg_NotFound(t *testing.T) {
	_, err := NewSubprocessFFmpeg("/nonexistent/ffmpeg999", testLogger())
	if err == nil {
		t.Fatal("expected error for nonexistent ffmpeg")
	}
}

func TestSubprocessFFmpeg_NonZeroExit(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no sh on PATH")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffmpeg")
	if err := os.WriteFile(script, []byte("#!"+sh+"\necho boom >&2\nexit 3\n"), 0755); err != nil {
		t.Fatal(err)
	}

	f, err := NewSubprocessFFmpeg(script, testLogger())
	if err != nil {
		t.Fatalf("NewSubprocessFFmpeg() error = %v", err)
	}

	err = f.Concat(context.Background(), filepath.Join(dir, "join.txt"), filepath.Join(dir, "join.mp4"))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T (%v)", err, err)
	}
	if exitErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "boom") {
		t.Errorf("Stderr = %q, want to contain boom", exitErr.Stderr)
	}
}

func TestSubprocessFFmpeg_Version(t *testing.T) {
	f, err := NewSubprocessFFmpeg("", testLogger())
	if err != nil {
		t.Skipf("no ffmpeg on PATH: %v", err)
	}
	v, err := f.Version(context.Background())
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if !strings.HasPrefix(v, "ffmpeg version") {
		t.Errorf("Version() = %q, want prefix %q", v, "ffmpeg version")
	}
}
