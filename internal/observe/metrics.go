// Package observe holds the agent's OpenTelemetry instruments. Instruments
// come from the global meter provider, which is a no-op unless the host
// installs one.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "parcelbot.ai/agent"

type Metrics struct {
	IntentionsStarted  metric.Int64Counter
	IntentionsFinished metric.Int64Counter
	Preemptions        metric.Int64Counter
	IntentionDuration  metric.Float64Histogram
	MoveAttempts       metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var (
		out Metrics
		err error
	)
	if out.IntentionsStarted, err = m.Int64Counter("parcelbot.intentions.started",
		metric.WithDescription("Intentions popped from the queue and started.")); err != nil {
		return nil, err
	}
	if out.IntentionsFinished, err = m.Int64Counter("parcelbot.intentions.finished",
		metric.WithDescription("Intentions finished, by kind and result.")); err != nil {
		return nil, err
	}
	if out.Preemptions, err = m.Int64Counter("parcelbot.intentions.preempted",
		metric.WithDescription("Current intentions stopped for a better option.")); err != nil {
		return nil, err
	}
	if out.IntentionDuration, err = m.Float64Histogram("parcelbot.intentions.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time from start to finish of an intention.")); err != nil {
		return nil, err
	}
	if out.MoveAttempts, err = m.Int64Counter("parcelbot.moves",
		metric.WithDescription("Primitive move attempts, by result.")); err != nil {
		return nil, err
	}
	return &out, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns instruments bound to the global meter provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func (m *Metrics) RecordStart(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.IntentionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordFinish(ctx context.Context, kind, result string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("result", result))
	m.IntentionsFinished.Add(ctx, 1, attrs)
	m.IntentionDuration.Record(ctx, seconds, attrs)
}

func (m *Metrics) RecordPreemption(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.Preemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
}

func (m *Metrics) RecordMove(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "rejected"
	}
	m.MoveAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
