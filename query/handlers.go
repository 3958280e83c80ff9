package query

import (
	"context"

	"github.com/goliatone/go-hooks/core"
)

type WebhookReader interface {
	ListWebhooks(ctx context.Context, organizationID string) ([]core.Webhook, error)
	GetWebhook(ctx context.Context, organizationID string, id string) (core.Webhook, error)
}

type DeliveryReader interface {
	ListDeliveries(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error)
	GetDelivery(ctx context.Context, organizationID string, id string) (core.WebhookDelivery, error)
}

type ListWebhooksQuery struct {
	reader WebhookReader
}

func NewListWebhooksQuery(reader WebhookReader) *ListWebhooksQuery {
	return &ListWebhooksQuery{reader: reader}
}

func (q *ListWebhooksQuery) Query(ctx context.Context, msg ListWebhooksMessage) ([]core.Webhook, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.ListWebhooks(ctx, msg.OrganizationID)
}

type GetWebhookQuery struct {
	reader WebhookReader
}

func NewGetWebhookQuery(reader WebhookReader) *GetWebhookQuery {
	return &GetWebhookQuery{reader: reader}
}

func (q *GetWebhookQuery) Query(ctx context.Context, msg GetWebhookMessage) (core.Webhook, error) {
	if q == nil || q.reader == nil {
		return core.Webhook{}, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.GetWebhook(ctx, msg.OrganizationID, msg.WebhookID)
}

type ListDeliveriesQuery struct {
	reader DeliveryReader
}

func NewListDeliveriesQuery(reader DeliveryReader) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{reader: reader}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) (core.DeliveryPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryPage{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.ListDeliveries(ctx, msg.Filter)
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.WebhookDelivery, error) {
	if q == nil || q.reader == nil {
		return core.WebhookDelivery{}, queryDependencyError("query: delivery reader is required")
	}
	return q.reader.GetDelivery(ctx, msg.OrganizationID, msg.DeliveryID)
}
