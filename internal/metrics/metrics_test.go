package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vodarchive/vodarchive/internal/metrics"
)

func TestRecordBackup(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.BackupsTotal.WithLabelValues(metrics.ResultSuccess))
	failBefore := testutil.ToFloat64(metrics.BackupsTotal.WithLabelValues(metrics.ResultFailure))
	stageBefore := testutil.ToFloat64(metrics.BackupFailures.WithLabelValues("split"))

	metrics.RecordBackup(true, "", time.Minute)
	metrics.RecordBackup(false, "split", time.Second)

	if got := testutil.ToFloat64(metrics.BackupsTotal.WithLabelValues(metrics.ResultSuccess)); got != okBefore+1 {
		t.Errorf("success count = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(metrics.BackupsTotal.WithLabelValues(metrics.ResultFailure)); got != failBefore+1 {
		t.Errorf("failure count = %v, want %v", got, failBefore+1)
	}
	if got := testutil.ToFloat64(metrics.BackupFailures.WithLabelValues("split")); got != stageBefore+1 {
		t.Errorf("split failures = %v, want %v", got, stageBefore+1)
	}
}

func TestRecordPass(t *testing.T) {
	at := time.Unix(1700000000, 0)
	metrics.RecordPass(7, at)

	if got := testutil.ToFloat64(metrics.PendingVideos); got != 7 {
		t.Errorf("pending = %v, want 7", got)
	}
	if got := testutil.ToFloat64(metrics.LastPassTimestamp); got != float64(at.Unix()) {
		t.Errorf("last pass = %v, want %v", got, float64(at.Unix()))
	}
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(metrics.APIRequests.WithLabelValues("GET", "/videos", "400"))

	metrics.RecordRequest("GET", "/videos", 400, 3*time.Millisecond)

	if got := testutil.ToFloat64(metrics.APIRequests.WithLabelValues("GET", "/videos", "400")); got != before+1 {
		t.Errorf("request count = %v, want %v", got, before+1)
	}
}

func TestPromhttpExposure(t *testing.T) {
	metrics.PartsUploaded.Inc()

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "vodarchive_parts_uploaded_total") {
		t.Error("vodarchive_parts_uploaded_total not exposed")
	}
}
