package infrastructure

import (
	"context"
	"fmt"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PanelMetrics carries the instruments recorded over a build run. They
// surface in the run_metrics.prom artifact through the Prometheus bridge.
type PanelMetrics struct {
	SourceRows     metric.Int64Counter
	SourceDropped  metric.Int64Counter
	SourceUnmapped metric.Int64Counter
	PanelRows      metric.Int64Gauge
	StageDuration  metric.Float64Histogram
}

// CreatePanelMetrics registers the run instruments on the meter.
func CreatePanelMetrics(meter metric.Meter) (*PanelMetrics, error) {
	sourceRows, err := meter.Int64Counter("tip_source_rows",
		metric.WithDescription("Rows a source contributed after cleaning"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, fmt.Errorf("infrastructure: source rows counter: %w", err)
	}

	sourceDropped, err := meter.Int64Counter("tip_source_dropped",
		metric.WithDescription("Rows a source dropped for range, scale or missing values"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, fmt.Errorf("infrastructure: source dropped counter: %w", err)
	}

	sourceUnmapped, err := meter.Int64Counter("tip_source_unmapped",
		metric.WithDescription("Rows a source dropped because the country did not resolve"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, fmt.Errorf("infrastructure: source unmapped counter: %w", err)
	}

	panelRows, err := meter.Int64Gauge("tip_panel_rows",
		metric.WithDescription("Rows in a written panel artifact"),
		metric.WithUnit("{row}"))
	if err != nil {
		return nil, fmt.Errorf("infrastructure: panel rows gauge: %w", err)
	}

	stageDuration, err := meter.Float64Histogram("tip_stage_duration_seconds",
		metric.WithDescription("Wall time per pipeline stage"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("infrastructure: stage duration histogram: %w", err)
	}

	return &PanelMetrics{
		SourceRows:     sourceRows,
		SourceDropped:  sourceDropped,
		SourceUnmapped: sourceUnmapped,
		PanelRows:      panelRows,
		StageDuration:  stageDuration,
	}, nil
}

// RecordSource records the clean outcome for one source table.
func (m *PanelMetrics) RecordSource(ctx context.Context, source string, rows, dropped, unmapped int) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.SourceRows.Add(ctx, int64(rows), attrs)
	m.SourceDropped.Add(ctx, int64(dropped), attrs)
	m.SourceUnmapped.Add(ctx, int64(unmapped), attrs)
}

// RecordPanel records the row count of a written panel artifact.
func (m *PanelMetrics) RecordPanel(ctx context.Context, artifact string, rows int) {
	m.PanelRows.Record(ctx, int64(rows),
		metric.WithAttributes(attribute.String("artifact", artifact)))
}

// RecordStage records one stage's wall time.
func (m *PanelMetrics) RecordStage(ctx context.Context, stage string, seconds float64, success bool) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.Bool("success", success),
		))
}

// WriteMetricsFile renders the registry in Prometheus text format.
func WriteMetricsFile(path string, g promclient.Gatherer) error {
	if err := promclient.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("infrastructure: write metrics file: %w", err)
	}
	return nil
}
