package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
)

// OTelMetricRecorder records the batch metrics as OpenTelemetry instruments. It is used
// instead of PrometheusRecorder when an OTLP metric exporter is configured.
type OTelMetricRecorder struct {
	jobDuration  metric.Float64Histogram
	jobStatus    metric.Int64Counter
	stepDuration metric.Float64Histogram
	itemRead     metric.Int64Counter
	itemProcess  metric.Int64Counter
	itemWrite    metric.Int64Counter
	itemSkip     metric.Int64Counter
	itemRetry    metric.Int64Counter
	chunkCommit  metric.Int64Counter
	lockAcquired metric.Int64Counter
	lockExcluded metric.Int64Counter
	partitions   metric.Int64Gauge
	duration     metric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on provider.
func NewOTelMetricRecorder(provider metric.MeterProvider) (*OTelMetricRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelMetricRecorder{}
	var errs [13]error
	r.jobDuration, errs[0] = meter.Float64Histogram("batch.job.duration", metric.WithUnit("s"))
	r.jobStatus, errs[1] = meter.Int64Counter("batch.job.status")
	r.stepDuration, errs[2] = meter.Float64Histogram("batch.step.duration", metric.WithUnit("s"))
	r.itemRead, errs[3] = meter.Int64Counter("batch.item.read")
	r.itemProcess, errs[4] = meter.Int64Counter("batch.item.process")
	r.itemWrite, errs[5] = meter.Int64Counter("batch.item.write")
	r.itemSkip, errs[6] = meter.Int64Counter("batch.item.skip")
	r.itemRetry, errs[7] = meter.Int64Counter("batch.item.retry")
	r.chunkCommit, errs[8] = meter.Int64Counter("batch.chunk.commit")
	r.lockAcquired, errs[9] = meter.Int64Counter("cob.accounts.locked")
	r.lockExcluded, errs[10] = meter.Int64Counter("cob.accounts.excluded")
	r.partitions, errs[11] = meter.Int64Gauge("cob.partitions")
	r.duration, errs[12] = meter.Float64Histogram("batch.operation.duration", metric.WithUnit("s"))
	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("failed to create OTel instruments: %w", err)
	}
	return r, nil
}

// NewMeterProvider builds an SDK provider exporting periodically to the configured OTLP endpoint.
func NewMeterProvider(ctx context.Context, cfg config.OTelMetricsConfig, serviceName string) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch cfg.Exporter {
	case "otlp-grpc":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case "otlp-http":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported metric exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metric exporter: %w", cfg.Exporter, err)
	}

	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(serviceResource(serviceName)),
	), nil
}

func stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(append([]attribute.KeyValue{
		attribute.String("job_name", jobNameFrom(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)...)
}

func (r *OTelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OTelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.CurrentStatus().String()),
	)
	r.jobStatus.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.jobDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OTelMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OTelMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	if execution.EndTime == nil {
		return
	}
	r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), metric.WithAttributes(
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OTelMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.itemRead.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OTelMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.itemProcess.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OTelMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemWrite.Add(ctx, int64(count), stepAttrs(ctx, stepName))
}

func (r *OTelMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkip.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("type", reason)))
}

func (r *OTelMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetry.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("type", reason)))
}

func (r *OTelMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommit.Add(ctx, 1, stepAttrs(ctx, stepName))
}

func (r *OTelMetricRecorder) RecordLockAcquired(ctx context.Context, partition string, locked, excluded int) {
	attrs := metric.WithAttributes(attribute.String("partition", partition))
	r.lockAcquired.Add(ctx, int64(locked), attrs)
	r.lockExcluded.Add(ctx, int64(excluded), attrs)
}

func (r *OTelMetricRecorder) RecordPartitions(ctx context.Context, jobName string, count int) {
	r.partitions.Record(ctx, int64(count), metric.WithAttributes(attribute.String("job_name", jobName)))
}

func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("operation", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)
