package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// Capabilities is the result of probing the ffmpeg installation.
type Capabilities struct {
	Available bool
	Version   string
	Error     string
	ProbedAt  time.Time
}

// CachedDoctor caches ffmpeg probe results with a configurable TTL so the
// runner does not spawn `ffmpeg -version` on every pass.
type CachedDoctor struct {
	ffmpeg FFmpeg
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around ffmpeg probes. A nil
// ffmpeg always reports ffmpeg as unavailable.
func NewCachedDoctor(ffmpeg FFmpeg, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		ffmpeg: ffmpeg,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) *Capabilities {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the last probe without triggering a new one.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps := &Capabilities{ProbedAt: time.Now()}
	if d.ffmpeg == nil {
		caps.Error = "ffmpeg not configured"
		d.cached = caps
		return caps
	}

	version, err := d.ffmpeg.Version(ctx)
	if err != nil {
		caps.Error = err.Error()
		if d.logger != nil {
			d.logger.Warn("ffmpeg probe failed", "error", err)
		}
	} else {
		caps.Available = true
		caps.Version = version
	}

	d.cached = caps
	return caps
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
