package transcript

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/loqalabs/loqa-scribe/transcript"

type metrics struct {
	accepted   metric.Int64Counter
	suppressed metric.Int64Counter
	restarts   metric.Int64Counter
	errors     metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	return &metrics{
		accepted:   counter(meter, "scribe.transcript.finals_accepted", "Final results appended to the transcript"),
		suppressed: counter(meter, "scribe.transcript.duplicates_suppressed", "Recognition results dropped as duplicates"),
		restarts:   counter(meter, "scribe.recognition.restarts", "Automatic engine restarts after a silent end"),
		errors:     counter(meter, "scribe.recognition.errors", "Engine errors by kind"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (m *metrics) acceptedFinals(n int) {
	if n > 0 {
		m.accepted.Add(context.Background(), int64(n))
	}
}

func (m *metrics) suppressedResult(reason string) {
	m.suppressed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) restart() {
	m.restarts.Add(context.Background(), 1)
}

func (m *metrics) engineError(kind string) {
	m.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
