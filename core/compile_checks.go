package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ WebhookDispatcher = (*Service)(nil)
	_ WebhookDispatcher = (*DispatchService)(nil)
	_ DeliveryAttempter = (*DeliveryWorker)(nil)
	_ JobEnqueuer       = (*MemoryJobQueue)(nil)
	_ JobDequeuer       = (*MemoryJobQueue)(nil)
	_ JobDelivery       = (*memoryDelivery)(nil)
	_ MetricsRecorder   = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
