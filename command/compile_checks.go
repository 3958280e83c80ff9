package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/core"
)

var (
	_ gocmd.Commander[CreateWebhookMessage]           = (*CreateWebhookCommand)(nil)
	_ gocmd.Commander[UpdateWebhookMessage]           = (*UpdateWebhookCommand)(nil)
	_ gocmd.Commander[DeleteWebhookMessage]           = (*DeleteWebhookCommand)(nil)
	_ gocmd.Commander[RegenerateWebhookSecretMessage] = (*RegenerateWebhookSecretCommand)(nil)
	_ gocmd.Commander[SendTestEventMessage]           = (*SendTestEventCommand)(nil)
	_ gocmd.Commander[RetryDeliveryMessage]           = (*RetryDeliveryCommand)(nil)
	_ gocmd.Commander[DispatchEventMessage]           = (*DispatchEventCommand)(nil)

	_ WebhookService = (*core.Service)(nil)
)
