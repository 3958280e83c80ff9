package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-hooks/core"
	hookmigrations "github.com/goliatone/go-hooks/migrations"
	sqlstore "github.com/goliatone/go-hooks/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-hooks-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"hook_webhooks", "hook_webhook_deliveries"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestWebhookStore_CRUDAndTenantScoping(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.WebhookStore()

	created, err := store.Create(ctx, core.CreateWebhookInput{
		OrganizationID: "org_1",
		Name:           " Orders ",
		URL:            "https://example.com/hooks",
		Secret:         "whsec_1",
		Events:         []string{"Order.Created", "order.created", "product.updated"},
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	if created.ID == "" || created.Name != "Orders" {
		t.Fatalf("unexpected created webhook %#v", created)
	}
	if len(created.Events) != 2 || created.Events[0] != "order.created" {
		t.Fatalf("expected normalized events, got %v", created.Events)
	}

	fetched, err := store.Get(ctx, "org_1", created.ID)
	if err != nil {
		t.Fatalf("get webhook: %v", err)
	}
	if fetched.Secret != "whsec_1" || len(fetched.Events) != 2 || !fetched.IsActive {
		t.Fatalf("unexpected fetched webhook %#v", fetched)
	}
	if _, err := store.Get(ctx, "org_2", created.ID); !errors.Is(err, core.ErrWebhookNotFound) {
		t.Fatalf("expected cross-tenant get to be not found, got %v", err)
	}
	if _, err := store.GetByID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, core.ErrWebhookNotFound) {
		t.Fatalf("expected missing webhook to be not found, got %v", err)
	}

	name := "Orders v2"
	inactive := false
	updated, err := store.Update(ctx, core.UpdateWebhookInput{
		OrganizationID: "org_1",
		ID:             created.ID,
		Name:           &name,
		Events:         []string{"order.status_changed"},
		IsActive:       &inactive,
	})
	if err != nil {
		t.Fatalf("update webhook: %v", err)
	}
	if updated.Name != name || updated.IsActive || len(updated.Events) != 1 || updated.URL != created.URL {
		t.Fatalf("unexpected updated webhook %#v", updated)
	}
	if _, err := store.Update(ctx, core.UpdateWebhookInput{OrganizationID: "org_2", ID: created.ID, Name: &name}); !errors.Is(err, core.ErrWebhookNotFound) {
		t.Fatalf("expected cross-tenant update to be not found, got %v", err)
	}

	rotated, err := store.UpdateSecret(ctx, "org_1", created.ID, "whsec_2")
	if err != nil {
		t.Fatalf("update secret: %v", err)
	}
	if rotated.Secret != "whsec_2" {
		t.Fatalf("expected rotated secret, got %q", rotated.Secret)
	}

	listed, err := store.List(ctx, "org_1")
	if err != nil {
		t.Fatalf("list webhooks: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one webhook in org_1, got %d", len(listed))
	}
	other, err := store.List(ctx, "org_2")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty org_2 list, got %d err=%v", len(other), err)
	}

	if err := store.Delete(ctx, "org_2", created.ID); !errors.Is(err, core.ErrWebhookNotFound) {
		t.Fatalf("expected cross-tenant delete to be not found, got %v", err)
	}
	if err := store.Delete(ctx, "org_1", created.ID); err != nil {
		t.Fatalf("delete webhook: %v", err)
	}
	if _, err := store.Get(ctx, "org_1", created.ID); !errors.Is(err, core.ErrWebhookNotFound) {
		t.Fatalf("expected deleted webhook to be gone, got %v", err)
	}
}

func TestWebhookStore_ListActiveForEvent(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.WebhookStore()

	subscribed := createWebhook(t, store, "org_1", true, "order.created", "order.updated")
	createWebhook(t, store, "org_1", false, "order.created")
	createWebhook(t, store, "org_1", true, "product.created")
	createWebhook(t, store, "org_2", true, "order.created")

	webhooks, err := store.ListActiveForEvent(ctx, "org_1", "ORDER.CREATED")
	if err != nil {
		t.Fatalf("list active for event: %v", err)
	}
	if len(webhooks) != 1 || webhooks[0].ID != subscribed.ID {
		t.Fatalf("expected only the active subscriber, got %#v", webhooks)
	}
}

func TestDeliveryStore_StateTransitionsAreGuarded(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()

	now := time.Now().UTC().Truncate(time.Second)
	delivery, err := deliveries.Create(ctx, core.CreateDeliveryInput{
		ID:             "c6b0a0de-6a55-4d0e-9a43-9d0c9f3f5a01",
		OrganizationID: "org_1",
		WebhookID:      webhook.ID,
		Event:          "order.created",
		Payload:        []byte(`{"id":"evt"}`),
		NextAttemptAt:  now,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if delivery.Status != core.DeliveryStatusPending || delivery.Attempts != 0 {
		t.Fatalf("expected pending delivery with zero attempts, got %s/%d", delivery.Status, delivery.Attempts)
	}
	if _, err := deliveries.Create(ctx, core.CreateDeliveryInput{
		ID: delivery.ID, OrganizationID: "org_1", WebhookID: webhook.ID, Event: "order.created", Payload: []byte("{}"),
	}); err == nil {
		t.Fatalf("expected duplicate delivery id to fail")
	}

	retryAt := now.Add(30 * time.Second)
	if err := deliveries.MarkRetry(ctx, delivery.ID, core.DeliveryAttemptResult{
		Attempts:     1,
		ResponseCode: 500,
		ResponseBody: "boom",
		Error:        "unexpected status 500",
		AttemptedAt:  now,
	}, retryAt); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	stored, err := deliveries.Get(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if stored.Status != core.DeliveryStatusPending || stored.Attempts != 1 || stored.LastResponseCode != 500 {
		t.Fatalf("unexpected delivery after retry %#v", stored)
	}
	if stored.NextAttemptAt == nil || !stored.NextAttemptAt.Equal(retryAt) {
		t.Fatalf("expected next attempt %s, got %v", retryAt, stored.NextAttemptAt)
	}
	if string(stored.Payload) != `{"id":"evt"}` {
		t.Fatalf("expected payload to be preserved, got %s", stored.Payload)
	}

	stale := core.DeliveryAttemptResult{Attempts: 1, ResponseCode: 200, AttemptedAt: now}
	if err := deliveries.MarkSuccess(ctx, delivery.ID, stale); !errors.Is(err, core.ErrDeliveryConflict) {
		t.Fatalf("expected stale attempt count to conflict, got %v", err)
	}

	if err := deliveries.MarkSuccess(ctx, delivery.ID, core.DeliveryAttemptResult{
		Attempts: 2, ResponseCode: 204, AttemptedAt: retryAt,
	}); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	stored, _ = deliveries.Get(ctx, delivery.ID)
	if stored.Status != core.DeliveryStatusSuccess || stored.Attempts != 2 || stored.NextAttemptAt != nil {
		t.Fatalf("unexpected delivery after success %#v", stored)
	}

	if err := deliveries.MarkFailed(ctx, delivery.ID, "late", now); !errors.Is(err, core.ErrDeliveryConflict) {
		t.Fatalf("expected terminal delivery to reject failure, got %v", err)
	}
	if err := deliveries.Reset(ctx, delivery.ID, now); !errors.Is(err, core.ErrDeliveryConflict) {
		t.Fatalf("expected success to be non-retryable, got %v", err)
	}
	if err := deliveries.MarkSuccess(ctx, "missing", stale); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected missing delivery, got %v", err)
	}
}

func TestDeliveryStore_ExhaustResetAndDue(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()
	now := time.Now().UTC().Truncate(time.Second)

	first := createDelivery(t, deliveries, webhook, now.Add(-time.Minute))
	second := createDelivery(t, deliveries, webhook, now.Add(-2*time.Minute))
	createDelivery(t, deliveries, webhook, now.Add(time.Hour))

	due, err := deliveries.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 || due[0].ID != second.ID || due[1].ID != first.ID {
		t.Fatalf("expected two due deliveries oldest first, got %#v", due)
	}
	limited, err := deliveries.ListDue(ctx, now, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d err=%v", len(limited), err)
	}

	if err := deliveries.MarkExhausted(ctx, first.ID, core.DeliveryAttemptResult{
		Attempts: 1, ResponseCode: 503, Error: "unexpected status 503", AttemptedAt: now,
	}); err != nil {
		t.Fatalf("mark exhausted: %v", err)
	}
	if err := deliveries.MarkFailed(ctx, second.ID, "webhook inactive", now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	stored, _ := deliveries.Get(ctx, second.ID)
	if stored.Status != core.DeliveryStatusFailed || stored.Attempts != 0 || stored.LastError != "webhook inactive" {
		t.Fatalf("unexpected failed delivery %#v", stored)
	}

	due, err = deliveries.ListDue(ctx, now, 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("expected terminal deliveries to leave the due set, got %d err=%v", len(due), err)
	}

	if err := deliveries.Reset(ctx, first.ID, now); err != nil {
		t.Fatalf("reset exhausted delivery: %v", err)
	}
	stored, _ = deliveries.Get(ctx, first.ID)
	if stored.Status != core.DeliveryStatusPending || stored.Attempts != 0 || stored.LastError != "" {
		t.Fatalf("unexpected reset delivery %#v", stored)
	}
	if stored.LastResponseCode != 503 {
		t.Fatalf("expected reset to keep last response code, got %d", stored.LastResponseCode)
	}
	due, _ = deliveries.ListDue(ctx, now, 10)
	if len(due) != 1 || due[0].ID != first.ID {
		t.Fatalf("expected reset delivery to be due, got %#v", due)
	}
}

func TestDeliveryStore_ListByWebhookPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	otherWebhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()
	now := time.Now().UTC()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, createDelivery(t, deliveries, webhook, now).ID)
		time.Sleep(5 * time.Millisecond)
	}
	createDelivery(t, deliveries, otherWebhook, now)
	if err := deliveries.MarkFailed(ctx, ids[0], "inactive", now); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	page, err := deliveries.ListByWebhook(ctx, core.DeliveryFilter{
		OrganizationID: "org_1",
		WebhookID:      webhook.ID,
		Page:           1,
		PerPage:        2,
	})
	if err != nil {
		t.Fatalf("list by webhook: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.PerPage != 2 {
		t.Fatalf("unexpected page %d/%d/%d", page.Total, len(page.Items), page.PerPage)
	}
	if page.Items[0].ID != ids[4] || page.Items[1].ID != ids[3] {
		t.Fatalf("expected newest first, got %s, %s", page.Items[0].ID, page.Items[1].ID)
	}

	last, err := deliveries.ListByWebhook(ctx, core.DeliveryFilter{
		OrganizationID: "org_1", WebhookID: webhook.ID, Page: 3, PerPage: 2,
	})
	if err != nil || len(last.Items) != 1 || last.Items[0].ID != ids[0] {
		t.Fatalf("unexpected last page %#v err=%v", last, err)
	}

	failed, err := deliveries.ListByWebhook(ctx, core.DeliveryFilter{
		OrganizationID: "org_1", WebhookID: webhook.ID, Status: core.DeliveryStatusFailed,
	})
	if err != nil || failed.Total != 1 || failed.Items[0].ID != ids[0] {
		t.Fatalf("unexpected status filter result %#v err=%v", failed, err)
	}

	foreign, err := deliveries.ListByWebhook(ctx, core.DeliveryFilter{OrganizationID: "org_2", WebhookID: webhook.ID})
	if err != nil || foreign.Total != 0 {
		t.Fatalf("expected tenant isolation, got %#v err=%v", foreign, err)
	}
	if _, err := deliveries.GetForOrganization(ctx, "org_2", ids[0]); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected cross-tenant delivery to be not found, got %v", err)
	}
}

func TestWebhookStore_DeleteFailsPendingDeliveries(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()
	pending := createDelivery(t, deliveries, webhook, time.Now().UTC())
	delivered := createDelivery(t, deliveries, webhook, time.Now().UTC())
	if err := deliveries.MarkSuccess(ctx, delivered.ID, core.DeliveryAttemptResult{
		Attempts: 1, ResponseCode: 200, AttemptedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	if err := factory.WebhookStore().Delete(ctx, "org_1", webhook.ID); err != nil {
		t.Fatalf("delete webhook: %v", err)
	}
	stored, err := deliveries.Get(ctx, pending.ID)
	if err != nil {
		t.Fatalf("expected pending delivery to survive the delete: %v", err)
	}
	if stored.Status != core.DeliveryStatusFailed || stored.LastError != core.ReasonWebhookDeleted || stored.NextAttemptAt != nil {
		t.Fatalf("expected failed delivery, got %#v", stored)
	}
	kept, err := deliveries.Get(ctx, delivered.ID)
	if err != nil || kept.Status != core.DeliveryStatusSuccess {
		t.Fatalf("expected delivered history to be kept, got %#v err=%v", kept, err)
	}
	due, err := deliveries.ListDue(ctx, time.Now().UTC().Add(time.Hour), 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("expected nothing due after delete, got %d err=%v", len(due), err)
	}
}

func TestDeliveryStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()
	now := time.Now().UTC().Truncate(time.Second)
	delivery := createDelivery(t, deliveries, webhook, now)
	lease := now.Add(time.Minute)

	if err := deliveries.Claim(ctx, delivery.ID, 0, now, lease); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// A second worker that read the same row loses the race.
	if err := deliveries.Claim(ctx, delivery.ID, 0, now, lease); !errors.Is(err, core.ErrDeliveryConflict) {
		t.Fatalf("expected second claim to conflict, got %v", err)
	}
	stored, err := deliveries.Get(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if stored.NextAttemptAt == nil || !stored.NextAttemptAt.Equal(lease) || stored.Status != core.DeliveryStatusPending {
		t.Fatalf("expected leased pending delivery, got %#v", stored)
	}
	if due, _ := deliveries.ListDue(ctx, now, 10); len(due) != 0 {
		t.Fatalf("expected leased delivery not to be due, got %d", len(due))
	}

	// Once the lease lapses the delivery can be claimed again.
	if err := deliveries.Claim(ctx, delivery.ID, 0, lease, lease.Add(time.Minute)); err != nil {
		t.Fatalf("claim after lease: %v", err)
	}
	if err := deliveries.Claim(ctx, delivery.ID, 1, lease.Add(2*time.Minute), lease.Add(3*time.Minute)); !errors.Is(err, core.ErrDeliveryConflict) {
		t.Fatalf("expected stale attempt count to conflict, got %v", err)
	}
	if err := deliveries.Claim(ctx, "missing", 0, now, lease); !errors.Is(err, core.ErrDeliveryNotFound) {
		t.Fatalf("expected missing delivery, got %v", err)
	}
}

func TestDeliveryWorkers_SharedStoreDeliverOnce(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	delivery := createDelivery(t, factory.DeliveryStore(), webhook, time.Now().UTC().Add(-time.Second))

	transport := &countingTransport{}
	workers := make([]*core.DeliveryWorker, 2)
	for i := range workers {
		worker, err := core.NewDeliveryWorker(factory.WebhookStore(), factory.DeliveryStore(), transport, core.DeliveryConfig{})
		if err != nil {
			t.Fatalf("new delivery worker: %v", err)
		}
		workers[i] = worker
	}
	// The second worker starts while the first is inside its POST.
	transport.during = func() {
		outcome, err := workers[1].Attempt(ctx, delivery.ID)
		if err != nil || !outcome.Skipped {
			t.Errorf("expected second worker to skip, outcome=%#v err=%v", outcome, err)
		}
	}
	outcome, err := workers[0].Attempt(ctx, delivery.ID)
	if err != nil || outcome.Status != core.DeliveryStatusSuccess {
		t.Fatalf("expected delivery, outcome=%#v err=%v", outcome, err)
	}
	if transport.posts != 1 {
		t.Fatalf("expected one POST for one delivery, got %d", transport.posts)
	}
}

func TestDeliveryStore_RecordsTruncatedMultibyteBody(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()
	now := time.Now().UTC()
	delivery := createDelivery(t, deliveries, webhook, now)

	body := strings.Repeat("a", 4095) + "é" + "tail"
	if err := deliveries.MarkRetry(ctx, delivery.ID, core.DeliveryAttemptResult{
		Attempts: 1, ResponseCode: 502, ResponseBody: body, AttemptedAt: now,
	}, now.Add(time.Minute)); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	stored, err := deliveries.Get(ctx, delivery.ID)
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if !utf8.ValidString(stored.LastResponseBody) || stored.LastResponseBody != strings.Repeat("a", 4095) {
		t.Fatalf("expected body cut before the split rune, got %d bytes", len(stored.LastResponseBody))
	}
}

type countingTransport struct {
	mu     sync.Mutex
	posts  int
	during func()
}

func (c *countingTransport) Post(context.Context, core.DeliveryRequest) (core.DeliveryResponse, error) {
	c.mu.Lock()
	c.posts++
	during := c.during
	c.during = nil
	c.mu.Unlock()
	if during != nil {
		during()
	}
	return core.DeliveryResponse{StatusCode: 200}, nil
}

func TestDeliveryStore_ConcurrentSuccessHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	webhook := createWebhook(t, factory.WebhookStore(), "org_1", true, "order.created")
	deliveries := factory.DeliveryStore()
	delivery := createDelivery(t, deliveries, webhook, time.Now().UTC())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := deliveries.MarkSuccess(ctx, delivery.ID, core.DeliveryAttemptResult{
				Attempts: 1, ResponseCode: 200, AttemptedAt: time.Now().UTC(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, core.ErrDeliveryConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 || conflicts != 3 {
		t.Fatalf("expected exactly one winner, got winners=%d conflicts=%d", winners, conflicts)
	}
}

func TestNewService_WiresStoresFromRepositoryFactory(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	svc, err := core.NewService(core.Config{ServiceName: "hooks"},
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.WebhookStore == nil || deps.DeliveryStore == nil {
		t.Fatalf("expected stores from repository factory")
	}

	created, err := svc.CreateWebhook(context.Background(), core.CreateWebhookRequest{
		OrganizationID: "org_1",
		Name:           "Orders",
		URL:            "https://example.com/hooks",
		Events:         []string{core.EventOrderCreated},
	})
	if err != nil {
		t.Fatalf("create webhook through service: %v", err)
	}
	result, err := svc.Dispatch(context.Background(), core.EventOrderCreated, map[string]any{"id": "ord_1"}, "org_1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("expected one persisted delivery, got %#v", result)
	}
	stored, err := deps.DeliveryStore.GetForOrganization(context.Background(), "org_1", result.DeliveryIDs[0])
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if stored.WebhookID != created.ID || stored.Status != core.DeliveryStatusPending {
		t.Fatalf("unexpected stored delivery %#v", stored)
	}
}

func TestResolveFactoryFromBunDB(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory from db: %v", err)
	}
	if factory.DB() != client.DB() {
		t.Fatalf("expected factory to keep the bun db")
	}
	if _, err := sqlstore.NewRepositoryFactory().BuildStores("not a db"); err == nil {
		t.Fatalf("expected unsupported client error")
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func createWebhook(t *testing.T, store core.WebhookStore, organizationID string, active bool, events ...string) core.Webhook {
	t.Helper()
	webhook, err := store.Create(context.Background(), core.CreateWebhookInput{
		OrganizationID: organizationID,
		Name:           "hook",
		URL:            "https://example.com/hooks",
		Secret:         "whsec",
		Events:         events,
		IsActive:       active,
	})
	if err != nil {
		t.Fatalf("create webhook: %v", err)
	}
	return webhook
}

var deliverySeq struct {
	mu sync.Mutex
	n  int
}

func createDelivery(t *testing.T, store core.DeliveryStore, webhook core.Webhook, next time.Time) core.WebhookDelivery {
	t.Helper()
	deliverySeq.mu.Lock()
	deliverySeq.n++
	id := fmt.Sprintf("dlv_%04d", deliverySeq.n)
	deliverySeq.mu.Unlock()

	delivery, err := store.Create(context.Background(), core.CreateDeliveryInput{
		ID:             id,
		OrganizationID: webhook.OrganizationID,
		WebhookID:      webhook.ID,
		Event:          "order.created",
		Payload:        []byte(`{}`),
		NextAttemptAt:  next,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return delivery
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:hooks-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = hookmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != hookmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookmigrations.WithDialects(hookmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
