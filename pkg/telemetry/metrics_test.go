package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openfroyo/beanstack/pkg/engine"
)

var _ engine.MetricsRecorder = (*Metrics)(nil)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	return m
}

func TestMetricsRecordReconciliation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordReconciliation("create", "success", 2*time.Second)
	m.RecordReconciliation("create", "success", time.Second)
	m.RecordReconciliation("update-version", "failed", time.Second)

	if got := testutil.ToFloat64(m.reconciliations.WithLabelValues("create", "success")); got != 2 {
		t.Errorf("Expected 2 successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconciliations.WithLabelValues("update-version", "failed")); got != 1 {
		t.Errorf("Expected 1 failed version update, got %v", got)
	}
	if got := testutil.CollectAndCount(m.reconcileDuration); got != 2 {
		t.Errorf("Expected 2 duration series, got %d", got)
	}
}

func TestMetricsEnvironmentReadiness(t *testing.T) {
	m := newTestMetrics(t)

	m.SetEnvironmentReady("auth-prod-a", false)
	if got := testutil.ToFloat64(m.environmentReady.WithLabelValues("auth-prod-a")); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
	m.SetEnvironmentReady("auth-prod-a", true)
	if got := testutil.ToFloat64(m.environmentReady.WithLabelValues("auth-prod-a")); got != 1 {
		t.Errorf("Expected 1, got %v", got)
	}

	m.RecordReadyWait("auth-prod-a", 90*time.Second)
	if got := testutil.CollectAndCount(m.readyWait); got != 1 {
		t.Errorf("Expected 1 ready-wait series, got %d", got)
	}
}

func TestMetricsRuns(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRunStarted("reconcile")
	if got := testutil.ToFloat64(m.activeRuns); got != 1 {
		t.Errorf("Expected 1 active run, got %v", got)
	}
	m.RecordRunCompleted("reconcile", "success", time.Minute)
	if got := testutil.ToFloat64(m.activeRuns); got != 0 {
		t.Errorf("Expected 0 active runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsCompleted.WithLabelValues("reconcile", "success")); got != 1 {
		t.Errorf("Expected 1 completed run, got %v", got)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordReconciliation("create", "success", time.Second)
	m.RecordReadyWait("auth", time.Second)
	m.SetEnvironmentReady("auth", true)
	m.SetDriftedSettings("auth", 3)
	m.RecordProviderCall("beanstalk", "describe-environments", time.Second)
	m.RecordProviderError("beanstalk", "describe-environments")
	m.RecordError("permanent", "")
	m.RecordPolicyViolation("production_capacity", "generic")
	m.RecordRunStarted("reconcile")
	m.RecordRunCompleted("reconcile", "success", time.Second)

	if m.Registry() != nil {
		t.Error("Expected no registry when disabled")
	}
	addr, err := m.StartMetricsServer(context.Background(), NewLoggerWithWriter(LoggingConfig{}, io.Discard))
	if err != nil || addr != "" {
		t.Errorf("Expected no server, got %q, %v", addr, err)
	}
}

func TestMetricsServe(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordProviderCall("beanstalk", "describe-environments", 100*time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.ServeMetrics(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), `beanstack_provider_calls_total{operation="describe-environments",provider="beanstalk"} 1`) {
		t.Errorf("Expected provider call in output, got:\n%s", body)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("ServeMetrics returned error: %v", err)
	}
}
