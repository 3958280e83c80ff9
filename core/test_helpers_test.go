package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryWebhookStore struct {
	mu   sync.Mutex
	next int
	byID map[string]Webhook
	now  func() time.Time

	// deliveries, when set, has its pending rows failed on Delete.
	deliveries *memoryDeliveryStore
}

func newMemoryWebhookStore() *memoryWebhookStore {
	return &memoryWebhookStore{
		byID: map[string]Webhook{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryWebhookStore) Create(_ context.Context, in CreateWebhookInput) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(in.OrganizationID) == "" {
		return Webhook{}, fmt.Errorf("organization id is required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		s.next++
		id = fmt.Sprintf("wh_%d", s.next)
	}
	now := s.now()
	webhook := Webhook{
		ID:             id,
		OrganizationID: in.OrganizationID,
		Name:           in.Name,
		URL:            in.URL,
		Secret:         in.Secret,
		Events:         append([]string(nil), in.Events...),
		IsActive:       in.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[id] = webhook
	return webhook, nil
}

func (s *memoryWebhookStore) Get(_ context.Context, organizationID string, id string) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.byID[id]
	if !ok || webhook.OrganizationID != organizationID {
		return Webhook{}, ErrWebhookNotFound
	}
	return webhook, nil
}

func (s *memoryWebhookStore) GetByID(_ context.Context, id string) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.byID[id]
	if !ok {
		return Webhook{}, ErrWebhookNotFound
	}
	return webhook, nil
}

func (s *memoryWebhookStore) List(_ context.Context, organizationID string) ([]Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Webhook{}
	for _, webhook := range s.byID {
		if webhook.OrganizationID == organizationID {
			out = append(out, webhook)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryWebhookStore) ListActiveForEvent(ctx context.Context, organizationID string, event string) ([]Webhook, error) {
	all, err := s.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	out := []Webhook{}
	for _, webhook := range all {
		if webhook.Subscribes(event) {
			out = append(out, webhook)
		}
	}
	return out, nil
}

func (s *memoryWebhookStore) Update(_ context.Context, in UpdateWebhookInput) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.byID[in.ID]
	if !ok || webhook.OrganizationID != in.OrganizationID {
		return Webhook{}, ErrWebhookNotFound
	}
	if in.Name != nil {
		webhook.Name = *in.Name
	}
	if in.URL != nil {
		webhook.URL = *in.URL
	}
	if in.Events != nil {
		webhook.Events = append([]string(nil), in.Events...)
	}
	if in.IsActive != nil {
		webhook.IsActive = *in.IsActive
	}
	webhook.UpdatedAt = s.now()
	s.byID[in.ID] = webhook
	return webhook, nil
}

func (s *memoryWebhookStore) UpdateSecret(_ context.Context, organizationID string, id string, secret string) (Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.byID[id]
	if !ok || webhook.OrganizationID != organizationID {
		return Webhook{}, ErrWebhookNotFound
	}
	webhook.Secret = secret
	webhook.UpdatedAt = s.now()
	s.byID[id] = webhook
	return webhook, nil
}

func (s *memoryWebhookStore) Delete(_ context.Context, organizationID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	webhook, ok := s.byID[id]
	if !ok || webhook.OrganizationID != organizationID {
		return ErrWebhookNotFound
	}
	delete(s.byID, id)
	if s.deliveries != nil {
		s.deliveries.failPendingForWebhook(id, ReasonWebhookDeleted)
	}
	return nil
}

type memoryDeliveryStore struct {
	mu        sync.Mutex
	byID      map[string]WebhookDelivery
	order     []string
	createErr error
	now       func() time.Time
}

func newMemoryDeliveryStore() *memoryDeliveryStore {
	return &memoryDeliveryStore{
		byID: map[string]WebhookDelivery{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryDeliveryStore) Create(_ context.Context, in CreateDeliveryInput) (WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return WebhookDelivery{}, s.createErr
	}
	if _, exists := s.byID[in.ID]; exists {
		return WebhookDelivery{}, fmt.Errorf("duplicate delivery %q", in.ID)
	}
	next := in.NextAttemptAt
	now := s.now()
	delivery := WebhookDelivery{
		ID:             in.ID,
		OrganizationID: in.OrganizationID,
		WebhookID:      in.WebhookID,
		Event:          in.Event,
		Payload:        append([]byte(nil), in.Payload...),
		Status:         DeliveryStatusPending,
		NextAttemptAt:  &next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[in.ID] = delivery
	s.order = append(s.order, in.ID)
	return delivery, nil
}

func (s *memoryDeliveryStore) Get(_ context.Context, id string) (WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return WebhookDelivery{}, ErrDeliveryNotFound
	}
	return delivery, nil
}

func (s *memoryDeliveryStore) GetForOrganization(ctx context.Context, organizationID string, id string) (WebhookDelivery, error) {
	delivery, err := s.Get(ctx, id)
	if err != nil {
		return WebhookDelivery{}, err
	}
	if delivery.OrganizationID != organizationID {
		return WebhookDelivery{}, ErrDeliveryNotFound
	}
	return delivery, nil
}

func (s *memoryDeliveryStore) ListByWebhook(_ context.Context, filter DeliveryFilter) (DeliveryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filter = filter.Normalize()
	matched := []WebhookDelivery{}
	for i := len(s.order) - 1; i >= 0; i-- {
		delivery := s.byID[s.order[i]]
		if delivery.OrganizationID != filter.OrganizationID || delivery.WebhookID != filter.WebhookID {
			continue
		}
		if filter.Status != "" && delivery.Status != filter.Status {
			continue
		}
		matched = append(matched, delivery)
	}
	page := DeliveryPage{Total: len(matched), Page: filter.Page, PerPage: filter.PerPage, Items: []WebhookDelivery{}}
	start := filter.Offset()
	if start < len(matched) {
		end := start + filter.PerPage
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[start:end]
	}
	return page, nil
}

func (s *memoryDeliveryStore) guarded(id string, attempts int, mutate func(*WebhookDelivery)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	if delivery.Status != DeliveryStatusPending || (attempts >= 0 && delivery.Attempts != attempts) {
		return ErrDeliveryConflict
	}
	mutate(&delivery)
	delivery.UpdatedAt = s.now()
	s.byID[id] = delivery
	return nil
}

func recordAttempt(delivery *WebhookDelivery, result DeliveryAttemptResult) {
	at := result.AttemptedAt
	delivery.Attempts = result.Attempts
	delivery.LastResponseCode = result.ResponseCode
	delivery.LastResponseBody = result.ResponseBody
	delivery.LastError = result.Error
	delivery.LastAttemptAt = &at
}

func (s *memoryDeliveryStore) Claim(_ context.Context, id string, attempts int, now time.Time, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	if delivery.Status != DeliveryStatusPending || delivery.Attempts != attempts {
		return ErrDeliveryConflict
	}
	if delivery.NextAttemptAt != nil && delivery.NextAttemptAt.After(now) {
		return ErrDeliveryConflict
	}
	delivery.NextAttemptAt = &until
	delivery.UpdatedAt = s.now()
	s.byID[id] = delivery
	return nil
}

func (s *memoryDeliveryStore) MarkSuccess(_ context.Context, id string, result DeliveryAttemptResult) error {
	return s.guarded(id, result.Attempts-1, func(delivery *WebhookDelivery) {
		recordAttempt(delivery, result)
		delivery.Status = DeliveryStatusSuccess
		delivery.NextAttemptAt = nil
	})
}

func (s *memoryDeliveryStore) MarkRetry(_ context.Context, id string, result DeliveryAttemptResult, nextAttemptAt time.Time) error {
	return s.guarded(id, result.Attempts-1, func(delivery *WebhookDelivery) {
		recordAttempt(delivery, result)
		delivery.NextAttemptAt = &nextAttemptAt
	})
}

func (s *memoryDeliveryStore) MarkExhausted(_ context.Context, id string, result DeliveryAttemptResult) error {
	return s.guarded(id, result.Attempts-1, func(delivery *WebhookDelivery) {
		recordAttempt(delivery, result)
		delivery.Status = DeliveryStatusExhausted
		delivery.NextAttemptAt = nil
	})
}

func (s *memoryDeliveryStore) MarkFailed(_ context.Context, id string, reason string, at time.Time) error {
	return s.guarded(id, -1, func(delivery *WebhookDelivery) {
		delivery.Status = DeliveryStatusFailed
		delivery.LastError = reason
		delivery.NextAttemptAt = nil
	})
}

func (s *memoryDeliveryStore) Reset(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.byID[id]
	if !ok {
		return ErrDeliveryNotFound
	}
	if !delivery.Status.Retryable() {
		return ErrDeliveryConflict
	}
	delivery.Status = DeliveryStatusPending
	delivery.Attempts = 0
	delivery.LastError = ""
	delivery.NextAttemptAt = &at
	delivery.UpdatedAt = s.now()
	s.byID[id] = delivery
	return nil
}

func (s *memoryDeliveryStore) ListDue(_ context.Context, before time.Time, limit int) ([]WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []WebhookDelivery{}
	for _, id := range s.order {
		delivery := s.byID[id]
		if delivery.Status != DeliveryStatusPending || delivery.NextAttemptAt == nil {
			continue
		}
		if delivery.NextAttemptAt.After(before) {
			continue
		}
		out = append(out, delivery)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NextAttemptAt.Before(*out[j].NextAttemptAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryDeliveryStore) failPendingForWebhook(webhookID string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, delivery := range s.byID {
		if delivery.WebhookID != webhookID || delivery.Status != DeliveryStatusPending {
			continue
		}
		delivery.Status = DeliveryStatusFailed
		delivery.LastError = reason
		delivery.NextAttemptAt = nil
		delivery.UpdatedAt = s.now()
		s.byID[id] = delivery
	}
}

// forceStatus sets a delivery's status directly for scenarios the worker
// cannot reach on its own.
func (s *memoryDeliveryStore) forceStatus(id string, status DeliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery := s.byID[id]
	delivery.Status = status
	s.byID[id] = delivery
}

type stubResponse struct {
	response DeliveryResponse
	err      error
}

type stubTransport struct {
	mu        sync.Mutex
	responses []stubResponse
	fallback  stubResponse
	requests  []DeliveryRequest
	onPost    func(DeliveryRequest)
}

func newStubTransport(statusCode int) *stubTransport {
	return &stubTransport{fallback: stubResponse{response: DeliveryResponse{StatusCode: statusCode}}}
}

func (t *stubTransport) push(response DeliveryResponse, err error) *stubTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses = append(t.responses, stubResponse{response: response, err: err})
	return t
}

func (t *stubTransport) Post(_ context.Context, req DeliveryRequest) (DeliveryResponse, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	next := t.fallback
	if len(t.responses) > 0 {
		next = t.responses[0]
		t.responses = t.responses[1:]
	}
	onPost := t.onPost
	t.mu.Unlock()
	if onPost != nil {
		onPost(req)
	}
	return next.response, next.err
}

func (t *stubTransport) calls() []DeliveryRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]DeliveryRequest(nil), t.requests...)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type testStores struct {
	webhooks   *memoryWebhookStore
	deliveries *memoryDeliveryStore
}

func (s testStores) WebhookStore() WebhookStore   { return s.webhooks }
func (s testStores) DeliveryStore() DeliveryStore { return s.deliveries }

func newTestStores() testStores {
	stores := testStores{webhooks: newMemoryWebhookStore(), deliveries: newMemoryDeliveryStore()}
	stores.webhooks.deliveries = stores.deliveries
	return stores
}

func seedWebhook(store *memoryWebhookStore, organizationID string, secret string, events ...string) Webhook {
	webhook, _ := store.Create(context.Background(), CreateWebhookInput{
		OrganizationID: organizationID,
		Name:           "test",
		URL:            "https://example.com/hook",
		Secret:         secret,
		Events:         events,
		IsActive:       true,
	})
	return webhook
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
}
