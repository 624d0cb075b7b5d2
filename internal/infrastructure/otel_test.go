package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestInitializeOTelDefaults(t *testing.T) {
	providers, err := InitializeOTel(nil, testLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	// Spans form without an exporter by default; metrics always bridge
	// into the Prometheus registry.
	assert.Nil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Registry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestInitializeOTelStdoutTraces(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "stdout"

	providers, err := InitializeOTel(cfg, testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	require.NotNil(t, providers.TracerProvider)

	ctx, span := providers.StartStage(context.Background(), "clean")
	assert.True(t, span.IsRecording())
	assert.True(t, span.SpanContext().IsValid())

	RecordError(ctx, errors.New("boom"))
	span.End()
}

func TestInitializeOTelRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "jaeger"

	_, err := InitializeOTel(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace exporter")
}

func TestStartStageWithoutExporter(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.StartStage(context.Background(), "assemble")
	require.NotNil(t, span)
	require.NotNil(t, ctx)

	// RecordError is a no-op on a non-recording span.
	RecordError(ctx, errors.New("ignored"))
	span.End()
}
