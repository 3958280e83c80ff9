package sqlstore

import (
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/uptrace/bun"
)

type webhookRecord struct {
	bun.BaseModel `bun:"table:hook_webhooks,alias:hw"`

	ID             string    `bun:"id,pk"`
	OrganizationID string    `bun:"organization_id,notnull"`
	Name           string    `bun:"name,notnull"`
	URL            string    `bun:"url,notnull"`
	Secret         string    `bun:"secret,notnull"`
	Events         []string  `bun:"events,type:jsonb,notnull"`
	IsActive       bool      `bun:"is_active,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:hook_webhook_deliveries,alias:hwd"`

	ID               string     `bun:"id,pk"`
	OrganizationID   string     `bun:"organization_id,notnull"`
	WebhookID        string     `bun:"webhook_id,notnull"`
	Event            string     `bun:"event,notnull"`
	Payload          []byte     `bun:"payload,notnull"`
	Status           string     `bun:"status,notnull"`
	Attempts         int        `bun:"attempts,notnull"`
	LastResponseCode int        `bun:"last_response_code,notnull"`
	LastResponseBody string     `bun:"last_response_body,notnull"`
	LastError        string     `bun:"last_error,notnull"`
	NextAttemptAt    *time.Time `bun:"next_attempt_at,nullzero"`
	LastAttemptAt    *time.Time `bun:"last_attempt_at,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookRecord) toDomain() core.Webhook {
	if r == nil {
		return core.Webhook{}
	}
	return core.Webhook{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		URL:            r.URL,
		Secret:         r.Secret,
		Events:         append([]string(nil), r.Events...),
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (r *deliveryRecord) toDomain() core.WebhookDelivery {
	if r == nil {
		return core.WebhookDelivery{}
	}
	return core.WebhookDelivery{
		ID:               r.ID,
		OrganizationID:   r.OrganizationID,
		WebhookID:        r.WebhookID,
		Event:            r.Event,
		Payload:          append([]byte(nil), r.Payload...),
		Status:           core.DeliveryStatus(r.Status),
		Attempts:         r.Attempts,
		LastResponseCode: r.LastResponseCode,
		LastResponseBody: r.LastResponseBody,
		LastError:        r.LastError,
		NextAttemptAt:    utcPointer(r.NextAttemptAt),
		LastAttemptAt:    utcPointer(r.LastAttemptAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
