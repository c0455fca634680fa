package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter provider. A nil *Observability, or one whose
// exporter failed to start, records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	assessments    otelmetric.Int64Counter
	confidenceHist otelmetric.Float64Histogram
}

func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}
	obs := NewWithReader(serviceName, exporter)
	otel.SetMeterProvider(obs.meterProvider)
	return obs, nil
}

// NewWithReader builds the instruments on a meter provider fed to reader.
func NewWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	assessments, _ := meter.Int64Counter(
		"assessments.completed",
		otelmetric.WithDescription("Completed malnutrition assessments"),
	)
	confidenceHist, _ := meter.Float64Histogram(
		"assessment.confidence",
		otelmetric.WithDescription("Confidence of completed assessments"),
		otelmetric.WithExplicitBucketBoundaries(0.4, 0.55, 0.7, 0.85, 1),
	)

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		jobCounter:     jobCounter,
		jobDuration:    jobDuration,
		assessments:    assessments,
		confidenceHist: confidenceHist,
	}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

// RecordAssessment counts an assessment and records its confidence.
func (o *Observability) RecordAssessment(ctx context.Context, diagnosis, riskLevel string, confidence float64, partial bool) {
	if o == nil || o.assessments == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("primary_diagnosis", diagnosis),
		attribute.String("risk_level", riskLevel),
		attribute.Bool("partial", partial),
	)
	o.assessments.Add(ctx, 1, attrs)
	if o.confidenceHist != nil {
		o.confidenceHist.Record(ctx, confidence, attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
