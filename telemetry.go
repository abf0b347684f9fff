package qdash

import (
	"context"
	"os"
	"runtime"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

func (s *Service) telemetryEnabled() bool {
	return !s.disableTelemetry && !s.cfg.DisableOpenTelemetry()
}

// initTelemetry wires the trace pipeline. Exporter selection and propagator
// composition are environment driven via the autoexport and autoprop
// conventions.
func (s *Service) initTelemetry(ctx context.Context) error {
	if !s.telemetryEnabled() {
		return nil
	}

	res, err := s.setupResource()
	if err != nil {
		return err
	}

	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())

	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)
	s.tracerShutdown = provider.Shutdown

	return nil
}

func (s *Service) setupResource() (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(s.Name()),
		semconv.ServiceVersion(s.Version()),
		semconv.DeploymentEnvironmentName(s.Environment()),
		semconv.ProcessPID(os.Getpid()),
		semconv.ProcessRuntimeName("go"),
		semconv.ProcessRuntimeVersion(runtime.Version()),
	}

	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}
