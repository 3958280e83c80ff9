package command

import (
	"strings"

	"github.com/goliatone/go-hooks/core"
)

const (
	TypeCreateWebhook           = "hooks.command.webhook.create"
	TypeUpdateWebhook           = "hooks.command.webhook.update"
	TypeDeleteWebhook           = "hooks.command.webhook.delete"
	TypeRegenerateWebhookSecret = "hooks.command.webhook.secret.regenerate"
	TypeSendTestEvent           = "hooks.command.webhook.test"
	TypeRetryDelivery           = "hooks.command.delivery.retry"
	TypeDispatchEvent           = "hooks.command.event.dispatch"
)

type CreateWebhookMessage struct {
	Request core.CreateWebhookRequest
}

func (CreateWebhookMessage) Type() string { return TypeCreateWebhook }

func (m CreateWebhookMessage) Validate() error {
	if err := requireField("organization_id", m.Request.OrganizationID); err != nil {
		return err
	}
	if err := requireField("name", m.Request.Name); err != nil {
		return err
	}
	if err := requireField("url", m.Request.URL); err != nil {
		return err
	}
	if len(m.Request.Events) == 0 {
		return commandValidationError("events", "at least one event is required")
	}
	return nil
}

type UpdateWebhookMessage struct {
	Request core.UpdateWebhookRequest
}

func (UpdateWebhookMessage) Type() string { return TypeUpdateWebhook }

func (m UpdateWebhookMessage) Validate() error {
	if err := requireField("organization_id", m.Request.OrganizationID); err != nil {
		return err
	}
	if err := requireField("id", m.Request.ID); err != nil {
		return err
	}
	if m.Request.Name != nil && strings.TrimSpace(*m.Request.Name) == "" {
		return commandValidationError("name", "name cannot be blank")
	}
	if m.Request.URL != nil && strings.TrimSpace(*m.Request.URL) == "" {
		return commandValidationError("url", "url cannot be blank")
	}
	if m.Request.Events != nil && len(m.Request.Events) == 0 {
		return commandValidationError("events", "events cannot be emptied")
	}
	return nil
}

type DeleteWebhookMessage struct {
	OrganizationID string
	WebhookID      string
}

func (DeleteWebhookMessage) Type() string { return TypeDeleteWebhook }

func (m DeleteWebhookMessage) Validate() error {
	return validateWebhookRef(m.OrganizationID, m.WebhookID)
}

type RegenerateWebhookSecretMessage struct {
	OrganizationID string
	WebhookID      string
}

func (RegenerateWebhookSecretMessage) Type() string { return TypeRegenerateWebhookSecret }

func (m RegenerateWebhookSecretMessage) Validate() error {
	return validateWebhookRef(m.OrganizationID, m.WebhookID)
}

type SendTestEventMessage struct {
	OrganizationID string
	WebhookID      string
}

func (SendTestEventMessage) Type() string { return TypeSendTestEvent }

func (m SendTestEventMessage) Validate() error {
	return validateWebhookRef(m.OrganizationID, m.WebhookID)
}

type RetryDeliveryMessage struct {
	OrganizationID string
	DeliveryID     string
}

func (RetryDeliveryMessage) Type() string { return TypeRetryDelivery }

func (m RetryDeliveryMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	return requireField("delivery_id", m.DeliveryID)
}

// DispatchEventMessage fans a domain event out to subscribed webhooks without
// going through the hook registry.
type DispatchEventMessage struct {
	OrganizationID string
	Event          string
	Payload        any
}

func (DispatchEventMessage) Type() string { return TypeDispatchEvent }

func (m DispatchEventMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	return requireField("event", m.Event)
}

func validateWebhookRef(organizationID string, webhookID string) error {
	if err := requireField("organization_id", organizationID); err != nil {
		return err
	}
	return requireField("webhook_id", webhookID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}
