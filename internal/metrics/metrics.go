// Package metrics exposes Prometheus counters for the backup pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// BackupsTotal counts finished backup attempts by result.
	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodarchive_backups_total",
		Help: "Total video backup attempts by result",
	}, []string{"result"})

	// BackupFailures counts failed attempts by the stage that failed.
	BackupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodarchive_backup_failures_total",
		Help: "Total failed video backups by stage",
	}, []string{"stage"})

	// BackupDuration tracks wall time of one video backup.
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodarchive_backup_duration_seconds",
		Help:    "Duration of one video backup from download to last upload",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10s to ~5.7h
	}, []string{"result"})

	PartsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodarchive_parts_uploaded_total",
		Help: "Total video parts uploaded",
	})

	PartsPerVideo = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vodarchive_parts_per_video",
		Help:    "Number of parts a video was split into",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 24},
	})

	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodarchive_downloaded_bytes_total",
		Help: "Total bytes downloaded from the source platform",
	})

	NewVideos = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vodarchive_sync_new_videos_total",
		Help: "Total videos discovered by catalog sync",
	})

	PendingVideos = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodarchive_pending_videos",
		Help: "Videos awaiting backup at the start of the last pass",
	})

	LastPassTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vodarchive_last_pass_timestamp_seconds",
		Help: "Unix time the last backup pass finished",
	})

	// APIRequests counts status API requests by route pattern, so ids in
	// paths do not add series.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vodarchive_api_requests_total",
		Help: "Total status API requests by method, route and status",
	}, []string{"method", "route", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vodarchive_api_request_duration_seconds",
		Help:    "Status API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordBackup records the outcome of one video backup. stage is ignored on success.
func RecordBackup(success bool, stage string, elapsed time.Duration) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		BackupFailures.WithLabelValues(stage).Inc()
	}
	BackupsTotal.WithLabelValues(result).Inc()
	BackupDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// RecordPass records the end of a full backup pass.
func RecordPass(pending int, at time.Time) {
	PendingVideos.Set(float64(pending))
	LastPassTimestamp.Set(float64(at.Unix()))
}

// RecordRequest records one served API request.
func RecordRequest(method, route string, status int, elapsed time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
