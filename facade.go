package hooks

import (
	"fmt"

	hookscommand "github.com/goliatone/go-hooks/command"
	hooksquery "github.com/goliatone/go-hooks/query"
)

type CommandQueryService interface {
	hookscommand.WebhookService
	hooksquery.WebhookReader
	hooksquery.DeliveryReader
}

type Commands struct {
	CreateWebhook    *hookscommand.CreateWebhookCommand
	UpdateWebhook    *hookscommand.UpdateWebhookCommand
	DeleteWebhook    *hookscommand.DeleteWebhookCommand
	RegenerateSecret *hookscommand.RegenerateWebhookSecretCommand
	SendTestEvent    *hookscommand.SendTestEventCommand
	RetryDelivery    *hookscommand.RetryDeliveryCommand
	DispatchEvent    *hookscommand.DispatchEventCommand
}

type Queries struct {
	ListWebhooks   *hooksquery.ListWebhooksQuery
	GetWebhook     *hooksquery.GetWebhookQuery
	ListDeliveries *hooksquery.ListDeliveriesQuery
	GetDelivery    *hooksquery.GetDeliveryQuery
}

// Facade groups the command and query handlers over one service so they can
// be registered with go-command in one place.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("hooks: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			CreateWebhook:    hookscommand.NewCreateWebhookCommand(service),
			UpdateWebhook:    hookscommand.NewUpdateWebhookCommand(service),
			DeleteWebhook:    hookscommand.NewDeleteWebhookCommand(service),
			RegenerateSecret: hookscommand.NewRegenerateWebhookSecretCommand(service),
			SendTestEvent:    hookscommand.NewSendTestEventCommand(service),
			RetryDelivery:    hookscommand.NewRetryDeliveryCommand(service),
			DispatchEvent:    hookscommand.NewDispatchEventCommand(service),
		},
		queries: Queries{
			ListWebhooks:   hooksquery.NewListWebhooksQuery(service),
			GetWebhook:     hooksquery.NewGetWebhookQuery(service),
			ListDeliveries: hooksquery.NewListDeliveriesQuery(service),
			GetDelivery:    hooksquery.NewGetDeliveryQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
