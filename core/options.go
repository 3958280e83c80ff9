package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	hookRegistry      *HookRegistry
	webhookStore      WebhookStore
	deliveryStore     DeliveryStore
	jobEnqueuer       JobEnqueuer
	transport         DeliveryTransport
	eventBindings     []EventBinding
	bindEvents        bool
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithHookRegistry shares an existing registry with the service instead of
// constructing a fresh one.
func WithHookRegistry(registry *HookRegistry) Option {
	return func(b *serviceBuilder) {
		b.hookRegistry = registry
	}
}

func WithWebhookStore(store WebhookStore) Option {
	return func(b *serviceBuilder) {
		b.webhookStore = store
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(b *serviceBuilder) {
		b.deliveryStore = store
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithDeliveryTransport(transport DeliveryTransport) Option {
	return func(b *serviceBuilder) {
		b.transport = transport
	}
}

func WithEventBindings(bindings ...EventBinding) Option {
	return func(b *serviceBuilder) {
		b.eventBindings = append([]EventBinding(nil), bindings...)
	}
}

func WithoutEventBinding() Option {
	return func(b *serviceBuilder) {
		b.bindEvents = false
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("hooks", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		bindEvents:      true,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap projects a config into a go-options layer. Zero values are
// left out of non-default layers so they do not shadow lower scopes.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.MaxAttempts > 0 {
		delivery["max_attempts"] = cfg.Delivery.MaxAttempts
	}
	if includeZero || cfg.Delivery.InitialBackoff > 0 {
		delivery["initial_backoff"] = cfg.Delivery.InitialBackoff
	}
	if includeZero || cfg.Delivery.MaxBackoff > 0 {
		delivery["max_backoff"] = cfg.Delivery.MaxBackoff
	}
	if includeZero || cfg.Delivery.RequestTimeout > 0 {
		delivery["request_timeout"] = cfg.Delivery.RequestTimeout
	}
	if includeZero || cfg.Delivery.ResponseBodyLimit > 0 {
		delivery["response_body_limit"] = cfg.Delivery.ResponseBodyLimit
	}
	if includeZero || strings.TrimSpace(cfg.Delivery.SignatureHeader) != "" {
		delivery["signature_header"] = cfg.Delivery.SignatureHeader
	}
	if includeZero || strings.TrimSpace(cfg.Delivery.UserAgent) != "" {
		delivery["user_agent"] = cfg.Delivery.UserAgent
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}

	dispatch := map[string]any{}
	if includeZero || cfg.Dispatch.AllowUnknownEvents {
		dispatch["allow_unknown_events"] = cfg.Dispatch.AllowUnknownEvents
	}
	if includeZero || cfg.Dispatch.SweepBatchSize > 0 {
		dispatch["sweep_batch_size"] = cfg.Dispatch.SweepBatchSize
	}
	if len(dispatch) > 0 {
		layer["dispatch"] = dispatch
	}

	if includeZero || cfg.Hooks.DefaultPriority != 0 {
		layer["hooks"] = map[string]any{
			"default_priority": cfg.Hooks.DefaultPriority,
		}
	}
	return layer
}
