package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/loancob/pkg/batch/core/config"
	metrics "github.com/tigerroll/loancob/pkg/batch/core/metrics"
	"github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// RecorderParams defines the dependencies of NewMetricRecorder.
type RecorderParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Infra     *config.InfrastructureConfig
}

// NewMetricRecorder selects the recorder from configuration: an OTLP exporter wins over
// Prometheus, and with neither enabled metrics are discarded.
func NewMetricRecorder(p RecorderParams) (metrics.MetricRecorder, error) {
	if exp := p.Infra.OTelMetrics.Exporter; exp != "" && exp != "none" {
		provider, err := NewMeterProvider(context.Background(), p.Infra.OTelMetrics, p.Infra.Tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{OnStop: provider.Shutdown})
		logger.Infof("Exporting metrics via %s to %s.", exp, p.Infra.OTelMetrics.Endpoint)
		return NewOTelMetricRecorder(provider)
	}

	if !p.Infra.Metrics.Enabled {
		return metrics.NewNoOpMetricRecorder(), nil
	}

	recorder := NewPrometheusRecorder()
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	server := &http.Server{Addr: p.Infra.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return err
			}
			logger.Infof("Serving Prometheus metrics on %s/metrics", ln.Addr())
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("Metrics server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
	return recorder, nil
}

// TracerParams defines the dependencies of NewTracer.
type TracerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Infra     *config.InfrastructureConfig
}

// NewTracer returns an OpenTelemetry tracer when an exporter is configured. Buffered spans
// are flushed on stop.
func NewTracer(p TracerParams) (metrics.Tracer, error) {
	exp := p.Infra.Tracing.Exporter
	if exp == "" || exp == "none" {
		return metrics.NewNoOpTracer(), nil
	}
	provider, err := NewTracerProvider(context.Background(), p.Infra.Tracing)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{OnStop: provider.Shutdown})
	logger.Infof("Exporting traces via %s to %s.", exp, p.Infra.Tracing.Endpoint)
	return NewOpenTelemetryTracer(provider), nil
}

// Module provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
