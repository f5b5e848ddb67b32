// Package metrics provides the Prometheus and OpenTelemetry implementations of the
// recorder and tracer used by the batch engine.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	port "github.com/tigerroll/loancob/pkg/batch/core/application/port"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// Everything is registered on a private registry served by Handler.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepProcessCount    *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepCommitCount     *prometheus.CounterVec

	itemSkipCounter  *prometheus.CounterVec
	itemRetryCounter *prometheus.CounterVec

	lockAcquiredCounter *prometheus.CounterVec
	lockExcludedCounter *prometheus.CounterVec
	partitionsGauge     *prometheus.GaugeVec
	durationSeconds     *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by final status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of batch step executions by final status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_read_total",
			Help: "Total items read by step.",
		}, []string{"job_name", "step_name"}),
		stepProcessCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_process_total",
			Help: "Total items processed by step.",
		}, []string{"job_name", "step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_write_total",
			Help: "Total items written by step.",
		}, []string{"job_name", "step_name"}),
		stepCommitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_commit_total",
			Help: "Total chunk commits by step.",
		}, []string{"job_name", "step_name"}),
		itemSkipCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_skip_total",
			Help: "Total items skipped by step and phase.",
		}, []string{"job_name", "step_name", "type"}),
		itemRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_item_retry_total",
			Help: "Total chunk retries by step and phase.",
		}, []string{"job_name", "step_name", "type"}),
		lockAcquiredCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cob_accounts_locked_total",
			Help: "Accounts soft-locked by the lock-acquisition step.",
		}, []string{"partition"}),
		lockExcludedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cob_accounts_excluded_total",
			Help: "Accounts excluded because another owner held their lock.",
		}, []string{"partition"}),
		partitionsGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cob_partitions",
			Help: "Partitions produced by the last run.",
		}, []string{"job_name"}),
		durationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds, r.jobStatusCounter,
		r.stepDurationSeconds, r.stepStatusCounter,
		r.stepReadCount, r.stepProcessCount, r.stepWriteCount, r.stepCommitCount,
		r.itemSkipCounter, r.itemRetryCounter,
		r.lockAcquiredCounter, r.lockExcludedCounter, r.partitionsGauge, r.durationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func jobNameFrom(ctx context.Context) string {
	if se := port.GetStepExecutionFromContext(ctx); se != nil && se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return "unknown"
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

// RecordJobEnd observes the duration and counts the final status.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	status := execution.CurrentStatus()
	r.jobStatusCounter.WithLabelValues(execution.JobName, status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	r.jobDurationSeconds.WithLabelValues(execution.JobName, status.String(), execution.ExitStatus.String()).
		Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

// RecordStepEnd observes the duration and counts the final status.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := "unknown"
	if execution.JobExecution != nil {
		jobName = execution.JobExecution.JobName
	}
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	if execution.EndTime == nil {
		return
	}
	r.stepDurationSeconds.WithLabelValues(jobName, execution.StepName, execution.Status.String(), execution.ExitStatus.String()).
		Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.stepReadCount.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.stepProcessCount.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.stepWriteCount.WithLabelValues(jobNameFrom(ctx), stepName).Add(float64(count))
}

// RecordItemSkip counts a skip; reason is the phase (read, process, write).
func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(jobNameFrom(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(jobNameFrom(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.stepCommitCount.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordLockAcquired(ctx context.Context, partition string, locked, excluded int) {
	r.lockAcquiredCounter.WithLabelValues(partition).Add(float64(locked))
	r.lockExcludedCounter.WithLabelValues(partition).Add(float64(excluded))
}

func (r *PrometheusRecorder) RecordPartitions(ctx context.Context, jobName string, count int) {
	r.partitionsGauge.WithLabelValues(jobName).Set(float64(count))
}

// RecordDuration observes duration under name. Tags are ignored to keep label cardinality fixed.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.durationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
