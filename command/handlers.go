package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/core"
)

// WebhookService is the mutating half of core.Service.
type WebhookService interface {
	CreateWebhook(ctx context.Context, req core.CreateWebhookRequest) (core.Webhook, error)
	UpdateWebhook(ctx context.Context, req core.UpdateWebhookRequest) (core.Webhook, error)
	DeleteWebhook(ctx context.Context, organizationID string, id string) error
	RegenerateSecret(ctx context.Context, organizationID string, id string) (core.Webhook, error)
	SendTestEvent(ctx context.Context, organizationID string, id string) (core.WebhookDelivery, error)
	RetryDelivery(ctx context.Context, organizationID string, id string) (core.WebhookDelivery, error)
	Dispatch(ctx context.Context, event string, payload any, organizationID string) (core.DispatchResult, error)
}

type CreateWebhookCommand struct {
	service WebhookService
}

func NewCreateWebhookCommand(service WebhookService) *CreateWebhookCommand {
	return &CreateWebhookCommand{service: service}
}

func (c *CreateWebhookCommand) Execute(ctx context.Context, msg CreateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.CreateWebhook(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateWebhookCommand struct {
	service WebhookService
}

func NewUpdateWebhookCommand(service WebhookService) *UpdateWebhookCommand {
	return &UpdateWebhookCommand{service: service}
}

func (c *UpdateWebhookCommand) Execute(ctx context.Context, msg UpdateWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.UpdateWebhook(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteWebhookCommand struct {
	service WebhookService
}

func NewDeleteWebhookCommand(service WebhookService) *DeleteWebhookCommand {
	return &DeleteWebhookCommand{service: service}
}

func (c *DeleteWebhookCommand) Execute(ctx context.Context, msg DeleteWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	return c.service.DeleteWebhook(ctx, msg.OrganizationID, msg.WebhookID)
}

type RegenerateWebhookSecretCommand struct {
	service WebhookService
}

func NewRegenerateWebhookSecretCommand(service WebhookService) *RegenerateWebhookSecretCommand {
	return &RegenerateWebhookSecretCommand{service: service}
}

func (c *RegenerateWebhookSecretCommand) Execute(ctx context.Context, msg RegenerateWebhookSecretMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.RegenerateSecret(ctx, msg.OrganizationID, msg.WebhookID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendTestEventCommand struct {
	service WebhookService
}

func NewSendTestEventCommand(service WebhookService) *SendTestEventCommand {
	return &SendTestEventCommand{service: service}
}

func (c *SendTestEventCommand) Execute(ctx context.Context, msg SendTestEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.SendTestEvent(ctx, msg.OrganizationID, msg.WebhookID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDeliveryCommand struct {
	service WebhookService
}

func NewRetryDeliveryCommand(service WebhookService) *RetryDeliveryCommand {
	return &RetryDeliveryCommand{service: service}
}

func (c *RetryDeliveryCommand) Execute(ctx context.Context, msg RetryDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.RetryDelivery(ctx, msg.OrganizationID, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchEventCommand struct {
	service WebhookService
}

func NewDispatchEventCommand(service WebhookService) *DispatchEventCommand {
	return &DispatchEventCommand{service: service}
}

func (c *DispatchEventCommand) Execute(ctx context.Context, msg DispatchEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.Dispatch(ctx, msg.Event, msg.Payload, msg.OrganizationID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
