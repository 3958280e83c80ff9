package query

import (
	"strings"

	"github.com/goliatone/go-hooks/core"
)

const (
	TypeListWebhooks   = "hooks.query.webhook.list"
	TypeGetWebhook     = "hooks.query.webhook.get"
	TypeListDeliveries = "hooks.query.delivery.list"
	TypeGetDelivery    = "hooks.query.delivery.get"
)

type ListWebhooksMessage struct {
	OrganizationID string
}

func (ListWebhooksMessage) Type() string { return TypeListWebhooks }

func (m ListWebhooksMessage) Validate() error {
	return requireField("organization_id", m.OrganizationID)
}

type GetWebhookMessage struct {
	OrganizationID string
	WebhookID      string
}

func (GetWebhookMessage) Type() string { return TypeGetWebhook }

func (m GetWebhookMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	return requireField("webhook_id", m.WebhookID)
}

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if err := requireField("organization_id", m.Filter.OrganizationID); err != nil {
		return err
	}
	if err := requireField("webhook_id", m.Filter.WebhookID); err != nil {
		return err
	}
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.Status != "" {
		if _, err := core.ParseDeliveryStatus(string(m.Filter.Status)); err != nil {
			return queryWrapValidation(err, "query: invalid delivery status")
		}
	}
	return nil
}

type GetDeliveryMessage struct {
	OrganizationID string
	DeliveryID     string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if err := requireField("organization_id", m.OrganizationID); err != nil {
		return err
	}
	return requireField("delivery_id", m.DeliveryID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, field+" is required")
	}
	return nil
}
