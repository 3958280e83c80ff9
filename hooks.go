package hooks

import (
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/transport"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type HookRegistry = core.HookRegistry
type EventBinding = core.EventBinding
type DomainEvent = core.DomainEvent
type Actor = core.Actor

type Webhook = core.Webhook
type WebhookDelivery = core.WebhookDelivery
type DeliveryStatus = core.DeliveryStatus
type DeliveryFilter = core.DeliveryFilter
type DeliveryPage = core.DeliveryPage
type DispatchResult = core.DispatchResult

type CreateWebhookRequest = core.CreateWebhookRequest
type UpdateWebhookRequest = core.UpdateWebhookRequest

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithHookRegistry      = core.WithHookRegistry
	WithWebhookStore      = core.WithWebhookStore
	WithDeliveryStore     = core.WithDeliveryStore
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithDeliveryTransport = core.WithDeliveryTransport
	WithEventBindings     = core.WithEventBindings
	WithoutEventBinding   = core.WithoutEventBinding
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds the webhook runtime with an HTTP delivery transport. A
// WithDeliveryTransport option overrides the default.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, withDefaultTransport(opts)...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, withDefaultTransport(opts)...)
}

func withDefaultTransport(opts []Option) []Option {
	out := make([]Option, 0, len(opts)+1)
	out = append(out, core.WithDeliveryTransport(transport.NewHTTPTransport(nil)))
	return append(out, opts...)
}
