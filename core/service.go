package core

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
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
	hooks             *HookRegistry
	webhookStore      WebhookStore
	deliveryStore     DeliveryStore
	jobEnqueuer       JobEnqueuer
	transport         DeliveryTransport
	dispatcher        *DispatchService
	worker            *DeliveryWorker
	sweeper           *DeliverySweeper
	binder            *EventBinder
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	HookRegistry      *HookRegistry
	WebhookStore      WebhookStore
	DeliveryStore     DeliveryStore
	JobEnqueuer       JobEnqueuer
	DeliveryTransport DeliveryTransport
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("hooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("hooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.webhookStore == nil || builder.deliveryStore == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if provided, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = provided
		}
		if stores != nil {
			if builder.webhookStore == nil {
				builder.webhookStore = stores.WebhookStore()
			}
			if builder.deliveryStore == nil {
				builder.deliveryStore = stores.DeliveryStore()
			}
		}
	}
	if builder.webhookStore == nil || builder.deliveryStore == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: webhook and delivery stores are required"))
	}
	if builder.jobEnqueuer == nil {
		builder.jobEnqueuer = NewMemoryJobQueue()
	}

	named := func(name string) Logger {
		if provider == nil {
			return logger
		}
		return glog.Ensure(provider.GetLogger(name))
	}
	if builder.hookRegistry == nil {
		builder.hookRegistry = NewHookRegistry(
			WithHookLogger(named("hooks.registry")),
			WithHookMetrics(builder.metricsRecorder),
			WithDefaultHookPriority(finalConfig.Hooks.DefaultPriority),
		)
	}

	dispatcher, err := NewDispatchService(
		builder.webhookStore,
		builder.deliveryStore,
		builder.jobEnqueuer,
		WithComponentLogger(named("hooks.dispatch")),
		WithComponentMetrics(builder.metricsRecorder),
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	sweeper, err := NewDeliverySweeper(
		builder.deliveryStore,
		builder.jobEnqueuer,
		finalConfig.Dispatch.SweepBatchSize,
		WithComponentLogger(named("hooks.delivery")),
		WithComponentMetrics(builder.metricsRecorder),
	)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	var worker *DeliveryWorker
	if builder.transport != nil {
		worker, err = NewDeliveryWorker(
			builder.webhookStore,
			builder.deliveryStore,
			builder.transport,
			finalConfig.Delivery,
			WithComponentLogger(named("hooks.delivery")),
			WithComponentMetrics(builder.metricsRecorder),
			WithComponentSecrets(builder.secretProvider),
		)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		hooks:             builder.hookRegistry,
		webhookStore:      builder.webhookStore,
		deliveryStore:     builder.deliveryStore,
		jobEnqueuer:       builder.jobEnqueuer,
		transport:         builder.transport,
		dispatcher:        dispatcher,
		worker:            worker,
		sweeper:           sweeper,
	}

	if builder.bindEvents {
		bindings := builder.eventBindings
		if bindings == nil {
			bindings = DefaultEventBindings()
		}
		binder, bindErr := NewEventBinder(svc, bindings,
			WithComponentLogger(named("hooks.binder")),
			WithComponentMetrics(builder.metricsRecorder),
		)
		if bindErr != nil {
			return nil, mapBuildError(builder.errorMapper, bindErr)
		}
		binder.Bind(svc.hooks)
		svc.binder = binder
	}
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		HookRegistry:      s.hooks,
		WebhookStore:      s.webhookStore,
		DeliveryStore:     s.deliveryStore,
		JobEnqueuer:       s.jobEnqueuer,
		DeliveryTransport: s.transport,
	}
}

// Hooks returns the registry business code emits actions and filters on.
func (s *Service) Hooks() *HookRegistry {
	if s == nil {
		return nil
	}
	return s.hooks
}

func (s *Service) Binder() *EventBinder {
	if s == nil {
		return nil
	}
	return s.binder
}

// Worker is nil when the service was built without a delivery transport.
func (s *Service) Worker() *DeliveryWorker {
	if s == nil {
		return nil
	}
	return s.worker
}

// NewDeliveryConsumer wires a queue consumer to the service's worker.
func (s *Service) NewDeliveryConsumer(dequeuer JobDequeuer, config DeliveryConsumerConfig) (*DeliveryConsumer, error) {
	if s == nil || s.worker == nil {
		return nil, fmt.Errorf("core: delivery transport is not configured")
	}
	var logger Logger = s.logger
	if s.loggerProvider != nil {
		logger = glog.Ensure(s.loggerProvider.GetLogger("hooks.delivery"))
	}
	return NewDeliveryConsumer(dequeuer, s.worker, config,
		WithComponentLogger(logger),
		WithComponentMetrics(s.metricsRecorder),
	)
}
