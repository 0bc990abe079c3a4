package correction

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-scribe/correction"

type traced struct {
	next     Corrector
	provider string
	tracer   trace.Tracer
	latency  metric.Float64Histogram
}

// Traced wraps c with a span and a latency histogram per call.
func Traced(c Corrector, provider string) Corrector {
	t := &traced{
		next:     c,
		provider: provider,
		tracer:   otel.Tracer(instrumentationName),
	}
	hist, err := otel.Meter(instrumentationName).Float64Histogram("scribe.correction.latency",
		metric.WithDescription("Correction call latency"),
		metric.WithUnit("ms"))
	if err == nil {
		t.latency = hist
	}
	return t
}

func (t *traced) Available() bool { return t.next.Available() }

func (t *traced) Reason() string { return UnavailableReason(t.next) }

func (t *traced) Correct(ctx context.Context, text string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "correction.correct", trace.WithAttributes(
		attribute.String("correction.provider", t.provider),
		attribute.Int("correction.text_length", len(text)),
	))
	defer span.End()

	start := time.Now()
	corrected, err := t.next.Correct(ctx, text)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if t.latency != nil {
		t.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(
				attribute.String("provider", t.provider),
				attribute.String("outcome", outcome),
			))
	}
	return corrected, err
}
