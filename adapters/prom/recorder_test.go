package prom

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, registry *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[string]*dto.MetricFamily{}
	for _, family := range families {
		out[family.GetName()] = family
	}
	return out
}

func labelMap(metric *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, pair := range metric.GetLabel() {
		out[pair.GetName()] = pair.GetValue()
	}
	return out
}

func TestRecorder_CountersUseSanitizedNamesAndTags(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry))
	ctx := context.Background()

	recorder.IncCounter(ctx, "hooks.delivery.attempt.total", 1, map[string]string{"event": "order.created", "status": "success"})
	recorder.IncCounter(ctx, "hooks.delivery.attempt.total", 2, map[string]string{"event": "order.created", "status": "success"})
	recorder.IncCounter(ctx, "hooks.delivery.attempt.total", 1, map[string]string{"event": "order.created", "status": "failed"})

	families := gather(t, registry)
	family, ok := families["hooks_delivery_attempt_total"]
	if !ok {
		t.Fatalf("expected hooks_delivery_attempt_total, got %v", families)
	}
	if len(family.GetMetric()) != 2 {
		t.Fatalf("expected two label sets, got %d", len(family.GetMetric()))
	}
	for _, metric := range family.GetMetric() {
		labels := labelMap(metric)
		if labels["event"] != "order.created" {
			t.Fatalf("unexpected labels %v", labels)
		}
		switch labels["status"] {
		case "success":
			if metric.GetCounter().GetValue() != 3 {
				t.Fatalf("expected success count 3, got %v", metric.GetCounter().GetValue())
			}
		case "failed":
			if metric.GetCounter().GetValue() != 1 {
				t.Fatalf("expected failed count 1, got %v", metric.GetCounter().GetValue())
			}
		default:
			t.Fatalf("unexpected status label %v", labels)
		}
	}
}

func TestRecorder_HistogramObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry), WithBuckets([]float64{10, 100}))

	recorder.ObserveHistogram(context.Background(), "hooks.delivery.duration_ms", 42, map[string]string{"event": "product.updated"})
	recorder.ObserveHistogram(context.Background(), "hooks.delivery.duration_ms", 7, map[string]string{"event": "product.updated"})

	family, ok := gather(t, registry)["hooks_delivery_duration_ms"]
	if !ok {
		t.Fatalf("expected duration histogram")
	}
	histogram := family.GetMetric()[0].GetHistogram()
	if histogram.GetSampleCount() != 2 || histogram.GetSampleSum() != 49 {
		t.Fatalf("unexpected histogram count=%d sum=%v", histogram.GetSampleCount(), histogram.GetSampleSum())
	}
	if len(histogram.GetBucket()) != 2 {
		t.Fatalf("expected configured buckets, got %d", len(histogram.GetBucket()))
	}
}

func TestRecorder_LabelSetIsFixedByFirstObservation(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry))
	ctx := context.Background()

	recorder.IncCounter(ctx, "hooks.dispatch.total", 1, map[string]string{"event": "order.created"})
	recorder.IncCounter(ctx, "hooks.dispatch.total", 1, map[string]string{"event": "order.created", "extra": "dropped"})
	recorder.IncCounter(ctx, "hooks.dispatch.total", 1, nil)

	family := gather(t, registry)["hooks_dispatch_total"]
	if family == nil || len(family.GetMetric()) != 2 {
		t.Fatalf("expected two series, got %#v", family)
	}
	for _, metric := range family.GetMetric() {
		if _, ok := labelMap(metric)["extra"]; ok {
			t.Fatalf("expected unknown tag to be dropped")
		}
	}
}

func TestRecorder_SharesCollectorsAcrossRecorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewRecorder(WithRegisterer(registry))
	second := NewRecorder(WithRegisterer(registry))
	ctx := context.Background()

	first.IncCounter(ctx, "hooks.action.total", 1, map[string]string{"action": "order.created"})
	second.IncCounter(ctx, "hooks.action.total", 1, map[string]string{"action": "order.created"})

	family := gather(t, registry)["hooks_action_total"]
	if family == nil || family.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected recorders to share the registered counter, got %#v", family)
	}
}

func TestRecorder_NamespaceAndInvalidInput(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(WithRegisterer(registry), WithNamespace("Shop-API"))
	ctx := context.Background()

	recorder.IncCounter(ctx, "  ", 1, nil)
	recorder.IncCounter(ctx, "hooks.dispatch.total", -1, nil)
	recorder.IncCounter(ctx, "hooks.dispatch.total", 1, nil)

	families := gather(t, registry)
	if _, ok := families["shop_api_hooks_dispatch_total"]; !ok {
		t.Fatalf("expected namespaced metric, got %v", families)
	}
	if len(families) != 1 {
		t.Fatalf("expected blank name to be ignored, got %d families", len(families))
	}

	var nilRecorder *Recorder
	nilRecorder.IncCounter(ctx, "hooks.dispatch.total", 1, nil)
	nilRecorder.ObserveHistogram(ctx, "hooks.dispatch.duration_ms", 1, nil)
}
