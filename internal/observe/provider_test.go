package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test", Registerer: reg})
	if err != nil {
		t.Fatalf("init provider: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}()

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordStart(ctx, "go_pick_up")
	m.RecordFinish(ctx, "go_pick_up", "achieved", 0.25)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var started, duration bool
	for _, f := range families {
		name := f.GetName()
		if strings.HasPrefix(name, "parcelbot_intentions_started") {
			started = true
		}
		if strings.HasPrefix(name, "parcelbot_intentions_duration") {
			duration = true
		}
	}
	if !started || !duration {
		t.Fatalf("missing families: started=%v duration=%v", started, duration)
	}
}
