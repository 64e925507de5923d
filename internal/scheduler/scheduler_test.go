package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/dormhub/internal/clock"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	obsmetrics "github.com/smallbiznis/dormhub/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBilling struct {
	billingdomain.Service
	rows  int64
	err   error
	calls int
}

func (f *fakeBilling) MarkOverdue(context.Context) (int64, error) {
	f.calls++
	return f.rows, f.err
}

type fakeReconciler struct {
	rows  int64
	calls int
}

func (f *fakeReconciler) Reconcile(context.Context) (int64, error) {
	f.calls++
	return f.rows, nil
}

func newTestScheduler(t *testing.T, cfg Config, billing *fakeBilling, reconciler *fakeReconciler) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.NewFakeClock(time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)),
		BillingSvc: billing,
		Reconciler: reconciler,
		Config:     cfg,
	})
	require.NoError(t, err)
	return s
}

func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "dormhub", Environment: "test"})
	return registry
}

func TestRunOnceRunsSweepsAndCountsRows(t *testing.T) {
	registry := useTestRegistry(t)
	billing := &fakeBilling{rows: 3}
	reconciler := &fakeReconciler{rows: 2}
	s := newTestScheduler(t, Config{}, billing, reconciler)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, billing.calls)
	assert.Equal(t, 1, reconciler.calls)

	rowLabels := func(job, resource string) map[string]string {
		return map[string]string{"service": "dormhub", "env": "test", "job": job, "resource": resource}
	}
	assert.Equal(t, float64(3), getCounterValue(t, registry, "dormhub_scheduler_rows_affected_total", rowLabels(JobMarkOverdue, "billings")))
	assert.Equal(t, float64(2), getCounterValue(t, registry, "dormhub_scheduler_rows_affected_total", rowLabels(JobReconcileMeterState, "occupancies")))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "dormhub_scheduler_job_runs_total",
		map[string]string{"service": "dormhub", "env": "test", "job": JobMarkOverdue}))
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	useTestRegistry(t)
	billing := &fakeBilling{}
	reconciler := &fakeReconciler{}
	s := newTestScheduler(t, Config{EnabledJobs: []string{"MARK_OVERDUE"}}, billing, reconciler)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, billing.calls)
	assert.Zero(t, reconciler.calls)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	registry := useTestRegistry(t)
	billing := &fakeBilling{err: errors.New("connection refused")}
	reconciler := &fakeReconciler{rows: 1}
	s := newTestScheduler(t, Config{}, billing, reconciler)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobMarkOverdue)
	assert.Equal(t, 1, reconciler.calls, "a failing job does not block the next one")
	assert.Equal(t, float64(1), getCounterValue(t, registry, "dormhub_scheduler_job_errors_total",
		map[string]string{"service": "dormhub", "env": "test", "job": JobMarkOverdue, "reason": obsmetrics.SchedulerJobReasonUnknown}))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{JobTimeout: 5 * time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL, "lock outlives the job deadline")
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "dormhub",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	s := &Scheduler{log: zap.NewNop(), genID: node, clock: clock.NewFakeClock(time.Time{})}
	err = s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "dormhub",
		"env":     "test",
		"job":     "timeout_job",
	}
	if got := getCounterValue(t, registry, "dormhub_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "dormhub",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "dormhub_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
