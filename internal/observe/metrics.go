// Package observe provides observability primitives for the proctor worker:
// OpenTelemetry metrics with a Prometheus exporter bridge, plus HTTP
// middleware for the worker's own endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all proctor metrics.
const meterName = "github.com/coral-ai/proctor"

// Metrics holds all OpenTelemetry metric instruments for the worker.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SpeakDuration tracks how long each spoken line takes from synthesis
	// start to playback end.
	SpeakDuration metric.Float64Histogram

	// ExamLoads counts exam store lookups. Use with attribute:
	//   attribute.String("status", ...) — ok, invalid_id, not_found, unavailable
	ExamLoads metric.Int64Counter

	// QuestionsAsked counts questions spoken to students.
	QuestionsAsked metric.Int64Counter

	// DataMessages counts inbound data-channel messages. Use with attribute:
	//   attribute.String("result", ...) — questions, ignored, malformed
	DataMessages metric.Int64Counter

	// UtterancesCommitted counts committed student answers.
	UtterancesCommitted metric.Int64Counter

	// ActiveSessions tracks the number of live exam sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// speakBuckets defines histogram bucket boundaries (in seconds) sized for
// spoken lines, which run from a short prompt to a full welcome message.
var speakBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SpeakDuration, err = m.Float64Histogram("proctor.speak.duration",
		metric.WithDescription("Duration of spoken lines from synthesis start to playback end."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(speakBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ExamLoads, err = m.Int64Counter("proctor.exam.loads",
		metric.WithDescription("Total exam store lookups by status."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsAsked, err = m.Int64Counter("proctor.questions.asked",
		metric.WithDescription("Total questions spoken to students."),
	); err != nil {
		return nil, err
	}
	if met.DataMessages, err = m.Int64Counter("proctor.data.messages",
		metric.WithDescription("Total inbound data-channel messages by result."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesCommitted, err = m.Int64Counter("proctor.utterances.committed",
		metric.WithDescription("Total committed student answers."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("proctor.active_sessions",
		metric.WithDescription("Number of live exam sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("proctor.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordExamLoad records one exam store lookup with its outcome status.
func (m *Metrics) RecordExamLoad(ctx context.Context, status string) {
	m.ExamLoads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordDataMessage records one inbound data-channel message with its
// handling result.
func (m *Metrics) RecordDataMessage(ctx context.Context, result string) {
	m.DataMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}
