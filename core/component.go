package core

import (
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// componentDeps carries the ambient dependencies shared by the dispatch,
// delivery and binder components.
type componentDeps struct {
	logger  Logger
	metrics MetricsRecorder
	now     func() time.Time
	newID   func() string
	secrets SecretProvider
}

type ComponentOption func(*componentDeps)

func WithComponentLogger(logger Logger) ComponentOption {
	return func(d *componentDeps) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithComponentMetrics(recorder MetricsRecorder) ComponentOption {
	return func(d *componentDeps) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) ComponentOption {
	return func(d *componentDeps) {
		if now != nil {
			d.now = now
		}
	}
}

func WithIDGenerator(newID func() string) ComponentOption {
	return func(d *componentDeps) {
		if newID != nil {
			d.newID = newID
		}
	}
}

// WithComponentSecrets sets the provider used to decrypt stored webhook
// secrets before signing.
func WithComponentSecrets(provider SecretProvider) ComponentOption {
	return func(d *componentDeps) {
		d.secrets = provider
	}
}

func newComponentDeps(opts []ComponentOption) componentDeps {
	deps := componentDeps{
		logger:  glog.Nop(),
		metrics: NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
		newID: newUUID,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&deps)
	}
	return deps
}

func newUUID() string {
	return uuid.NewString()
}
