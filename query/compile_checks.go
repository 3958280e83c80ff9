package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/core"
)

var (
	_ gocmd.Querier[ListWebhooksMessage, []core.Webhook]      = (*ListWebhooksQuery)(nil)
	_ gocmd.Querier[GetWebhookMessage, core.Webhook]          = (*GetWebhookQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, core.DeliveryPage] = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.WebhookDelivery] = (*GetDeliveryQuery)(nil)

	_ WebhookReader  = (*core.Service)(nil)
	_ DeliveryReader = (*core.Service)(nil)
)
