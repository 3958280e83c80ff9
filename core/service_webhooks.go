package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Dispatch is the WebhookDispatcher entry point used by the event binder and
// by code that emits public events directly.
func (s *Service) Dispatch(ctx context.Context, event string, payload any, organizationID string) (result DispatchResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"event":           NormalizeEventName(event),
		"organization_id": organizationID,
	}
	defer func() {
		fields["matched"] = result.Matched
		fields["created"] = result.Created
		s.observeOperation(ctx, startedAt, "dispatch", err, fields)
	}()
	if s == nil || s.dispatcher == nil {
		err = fmt.Errorf("core: dispatch service is not configured")
		return DispatchResult{}, err
	}
	result, err = s.dispatcher.Dispatch(ctx, event, payload, organizationID)
	if err != nil {
		err = s.mapError(err)
		return result, err
	}
	return result, nil
}

func (s *Service) ListWebhooks(ctx context.Context, organizationID string) (webhooks []Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_webhooks", err, fields)
	}()
	if strings.TrimSpace(organizationID) == "" {
		err = s.mapError(fmt.Errorf("core: organization id is required"))
		return nil, err
	}
	webhooks, err = s.webhookStore.List(ctx, strings.TrimSpace(organizationID))
	if err != nil {
		err = s.mapError(err)
		return nil, err
	}
	for i := range webhooks {
		webhooks[i].Secret = MaskSecret(s.revealSecret(ctx, webhooks[i].Secret))
	}
	return webhooks, nil
}

// GetWebhook returns the webhook with its signing secret in plaintext.
func (s *Service) GetWebhook(ctx context.Context, organizationID string, id string) (webhook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID, "webhook_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_webhook", err, fields)
	}()
	if err = requireScope(organizationID, id, "webhook"); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	webhook, err = s.webhookStore.Get(ctx, strings.TrimSpace(organizationID), strings.TrimSpace(id))
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	if webhook.Secret, err = openSecret(ctx, s.secretProvider, webhook.Secret); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	return webhook, nil
}

func (s *Service) CreateWebhook(ctx context.Context, req CreateWebhookRequest) (webhook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": req.OrganizationID, "url": req.URL}
	defer func() {
		fields["webhook_id"] = webhook.ID
		s.observeOperation(ctx, startedAt, "create_webhook", err, fields)
	}()
	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	events := NormalizeEvents(req.Events)
	if err = s.checkEvents(events); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	secret, err := GenerateSecret()
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	stored, err := sealSecret(ctx, s.secretProvider, secret)
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	webhook, err = s.webhookStore.Create(ctx, CreateWebhookInput{
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		Name:           strings.TrimSpace(req.Name),
		URL:            strings.TrimSpace(req.URL),
		Secret:         stored,
		Events:         events,
		IsActive:       active,
	})
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	webhook.Secret = secret
	return webhook, nil
}

func (s *Service) UpdateWebhook(ctx context.Context, req UpdateWebhookRequest) (webhook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": req.OrganizationID, "webhook_id": req.ID}
	defer func() {
		s.observeOperation(ctx, startedAt, "update_webhook", err, fields)
	}()
	if err = req.Validate(); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	var events []string
	if req.Events != nil {
		events = NormalizeEvents(req.Events)
		if err = s.checkEvents(events); err != nil {
			err = s.mapError(err)
			return Webhook{}, err
		}
	}
	in := UpdateWebhookInput{
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		ID:             strings.TrimSpace(req.ID),
		Events:         events,
		IsActive:       req.IsActive,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		in.Name = &name
	}
	if req.URL != nil {
		url := strings.TrimSpace(*req.URL)
		in.URL = &url
	}
	webhook, err = s.webhookStore.Update(ctx, in)
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	webhook.Secret = MaskSecret(s.revealSecret(ctx, webhook.Secret))
	return webhook, nil
}

func (s *Service) DeleteWebhook(ctx context.Context, organizationID string, id string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID, "webhook_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "delete_webhook", err, fields)
	}()
	if err = requireScope(organizationID, id, "webhook"); err != nil {
		err = s.mapError(err)
		return err
	}
	if err = s.webhookStore.Delete(ctx, strings.TrimSpace(organizationID), strings.TrimSpace(id)); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// RegenerateSecret replaces the signing secret. Deliveries already sent keep
// the signature computed with the previous secret.
func (s *Service) RegenerateSecret(ctx context.Context, organizationID string, id string) (webhook Webhook, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID, "webhook_id": id}
	defer func() {
		s.observeOperation(ctx, startedAt, "regenerate_secret", err, fields)
	}()
	if err = requireScope(organizationID, id, "webhook"); err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	secret, err := GenerateSecret()
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	stored, err := sealSecret(ctx, s.secretProvider, secret)
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	webhook, err = s.webhookStore.UpdateSecret(ctx, strings.TrimSpace(organizationID), strings.TrimSpace(id), stored)
	if err != nil {
		err = s.mapError(err)
		return Webhook{}, err
	}
	webhook.Secret = secret
	return webhook, nil
}

// SendTestEvent delivers a synthetic webhook.test event to one webhook,
// whether or not it subscribes to it.
func (s *Service) SendTestEvent(ctx context.Context, organizationID string, id string) (delivery WebhookDelivery, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"organization_id": organizationID, "webhook_id": id, "event": EventWebhookTest}
	defer func() {
		fields["delivery_id"] = delivery.ID
		s.observeOperation(ctx, startedAt, "send_test_event", err, fields)
	}()
	if err = requireScope(organizationID, id, "webhook"); err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	webhook, err := s.webhookStore.Get(ctx, strings.TrimSpace(organizationID), strings.TrimSpace(id))
	if err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	payload := map[string]any{
		"version": PayloadVersion,
		"data": map[string]any{
			"webhook_id": webhook.ID,
			"name":       webhook.Name,
			"message":    "This is a test event.",
		},
	}
	delivery, err = s.dispatcher.DispatchTo(ctx, webhook, EventWebhookTest, payload)
	if err != nil {
		err = s.mapError(err)
		return WebhookDelivery{}, err
	}
	return delivery, nil
}

func (s *Service) checkEvents(events []string) error {
	if s.config.Dispatch.AllowUnknownEvents {
		return nil
	}
	known := KnownEvents()
	if s.binder != nil {
		known = EventsFromBindings(s.binder.Bindings())
	}
	for _, event := range events {
		if !containsEvent(known, event) {
			return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
		}
	}
	return nil
}

func (s *Service) revealSecret(ctx context.Context, stored string) string {
	plaintext, err := openSecret(ctx, s.secretProvider, stored)
	if err != nil {
		return ""
	}
	return plaintext
}

func requireScope(organizationID string, id string, kind string) error {
	if strings.TrimSpace(organizationID) == "" {
		return fmt.Errorf("core: organization id is required")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("core: %s id is required", kind)
	}
	return nil
}
