package prom

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-hooks/core"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "hooks"

var DefaultBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

// WithRegisterer replaces prometheus.DefaultRegisterer.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(r *Recorder) {
		if registerer != nil {
			r.registerer = registerer
		}
	}
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder maps core metric calls onto prometheus vectors. Vectors are
// created on first use; the label set of a metric is fixed by its first
// observation and later tags outside that set are dropped.
type Recorder struct {
	mu         sync.Mutex
	namespace  string
	registerer prometheus.Registerer
	buckets    []float64
	counters   map[string]*counter
	histograms map[string]*histogram
}

type counter struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogram struct {
	vec    *prometheus.HistogramVec
	labels []string
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		namespace:  DefaultNamespace,
		registerer: prometheus.DefaultRegisterer,
		buckets:    DefaultBuckets,
		counters:   map[string]*counter{},
		histograms: map[string]*histogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	c := r.counter(name, tags)
	if c == nil {
		return
	}
	c.vec.WithLabelValues(labelValues(c.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	h := r.histogram(name, tags)
	if h == nil {
		return
	}
	h.vec.WithLabelValues(labelValues(h.labels, tags)...).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) *counter {
	metric := r.metricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[metric]; ok {
		return c
	}
	labels := labelNames(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      metric,
		Help:      "Counter recorded by go-hooks for " + strings.TrimSpace(name) + ".",
	}, labels)
	vec = registerCollector(r.registerer, vec)
	c := &counter{vec: vec, labels: labels}
	r.counters[metric] = c
	return c
}

func (r *Recorder) histogram(name string, tags map[string]string) *histogram {
	metric := r.metricName(name)
	if metric == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[metric]; ok {
		return h
	}
	labels := labelNames(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      metric,
		Help:      "Histogram recorded by go-hooks for " + strings.TrimSpace(name) + ".",
		Buckets:   r.buckets,
	}, labels)
	vec = registerCollector(r.registerer, vec)
	h := &histogram{vec: vec, labels: labels}
	r.histograms[metric] = h
	return h
}

// metricName strips the namespace prefix so "hooks.dispatch.total" becomes
// hooks_dispatch_total rather than hooks_hooks_dispatch_total.
func (r *Recorder) metricName(name string) string {
	metric := sanitize(name)
	if r.namespace != "" {
		metric = strings.TrimPrefix(metric, r.namespace+"_")
	}
	return metric
}

func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if registerer == nil {
		return collector
	}
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, match := already.ExistingCollector.(T); match {
				return existing
			}
		}
	}
	return collector
}

func labelNames(tags map[string]string) []string {
	labels := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for key := range tags {
		label := sanitize(key)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func labelValues(labels []string, tags map[string]string) []string {
	values := make([]string, len(labels))
	if len(tags) == 0 {
		return values
	}
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[sanitize(key)] = value
	}
	for i, label := range labels {
		values[i] = normalized[label]
	}
	return values
}

func sanitize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ core.MetricsRecorder = (*Recorder)(nil)
