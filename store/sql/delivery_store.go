package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-hooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const maxStoredResponseBody = 4096

type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{db: db, repo: repo}, nil
}

func (s *DeliveryStore) Create(ctx context.Context, in core.CreateDeliveryInput) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery id is required")
	}
	if strings.TrimSpace(in.WebhookID) == "" || strings.TrimSpace(in.OrganizationID) == "" {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: webhook id and organization id are required")
	}

	now := time.Now().UTC()
	next := in.NextAttemptAt.UTC()
	if in.NextAttemptAt.IsZero() {
		next = now
	}
	record := &deliveryRecord{
		ID:             id,
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		WebhookID:      strings.TrimSpace(in.WebhookID),
		Event:          core.NormalizeEventName(in.Event),
		Payload:        append([]byte(nil), in.Payload...),
		Status:         string(core.DeliveryStatusPending),
		NextAttemptAt:  &next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery %q already exists: %w", id, err)
		}
		return core.WebhookDelivery{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) Get(ctx context.Context, id string) (core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return core.WebhookDelivery{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	record := &deliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookDelivery{}, core.ErrDeliveryNotFound
		}
		return core.WebhookDelivery{}, err
	}
	return record.toDomain(), nil
}

func (s *DeliveryStore) GetForOrganization(ctx context.Context, organizationID string, id string) (core.WebhookDelivery, error) {
	delivery, err := s.Get(ctx, id)
	if err != nil {
		return core.WebhookDelivery{}, err
	}
	if delivery.OrganizationID != strings.TrimSpace(organizationID) {
		return core.WebhookDelivery{}, core.ErrDeliveryNotFound
	}
	return delivery, nil
}

func (s *DeliveryStore) ListByWebhook(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if s == nil || s.repo == nil {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	filter = filter.Normalize()
	selectors := []repository.SelectCriteria{
		repository.SelectBy("organization_id", "=", filter.OrganizationID),
		repository.SelectBy("webhook_id", "=", filter.WebhookID),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(filter.PerPage, filter.Offset()),
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.DeliveryPage{}, err
	}
	items := make([]core.WebhookDelivery, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.DeliveryPage{
		Items:   items,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

// Claim leases the delivery for one attempt. Only a pending row with the
// expected attempt count that is due at now can be claimed.
func (s *DeliveryStore) Claim(ctx context.Context, id string, attempts int, now time.Time, until time.Time) error {
	return s.guardedUpdate(ctx, id, attempts, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("next_attempt_at = ?", until.UTC()).
			WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
				return q.
					Where("next_attempt_at IS NULL").
					WhereOr("next_attempt_at <= ?", now.UTC())
			})
	})
}

func (s *DeliveryStore) MarkSuccess(ctx context.Context, id string, result core.DeliveryAttemptResult) error {
	return s.guardedUpdate(ctx, id, result.Attempts-1, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return withAttempt(q, result).
			Set("status = ?", string(core.DeliveryStatusSuccess)).
			Set("next_attempt_at = NULL")
	})
}

func (s *DeliveryStore) MarkRetry(ctx context.Context, id string, result core.DeliveryAttemptResult, nextAttemptAt time.Time) error {
	return s.guardedUpdate(ctx, id, result.Attempts-1, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return withAttempt(q, result).
			Set("next_attempt_at = ?", nextAttemptAt.UTC())
	})
}

func (s *DeliveryStore) MarkExhausted(ctx context.Context, id string, result core.DeliveryAttemptResult) error {
	return s.guardedUpdate(ctx, id, result.Attempts-1, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return withAttempt(q, result).
			Set("status = ?", string(core.DeliveryStatusExhausted)).
			Set("next_attempt_at = NULL")
	})
}

// MarkFailed moves a pending delivery to failed without counting an attempt.
func (s *DeliveryStore) MarkFailed(ctx context.Context, id string, reason string, at time.Time) error {
	return s.guardedUpdate(ctx, id, -1, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("status = ?", string(core.DeliveryStatusFailed)).
			Set("last_error = ?", strings.TrimSpace(reason)).
			Set("next_attempt_at = NULL")
	})
}

func (s *DeliveryStore) Reset(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("status = ?", string(core.DeliveryStatusPending)).
		Set("attempts = 0").
		Set("last_error = ''").
		Set("next_attempt_at = ?", at.UTC()).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]string{
			string(core.DeliveryStatusFailed),
			string(core.DeliveryStatusExhausted),
		})).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, id)
}

func (s *DeliveryStore) ListDue(ctx context.Context, before time.Time, limit int) ([]core.WebhookDelivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	records := []*deliveryRecord{}
	q := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.DeliveryStatusPending)).
		Where("?TableAlias.next_attempt_at IS NOT NULL").
		Where("?TableAlias.next_attempt_at <= ?", before.UTC()).
		OrderExpr("?TableAlias.next_attempt_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.WebhookDelivery, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// guardedUpdate applies a state transition only while the row is still
// pending with the expected attempt count. A negative attempts skips the
// attempt check.
func (s *DeliveryStore) guardedUpdate(
	ctx context.Context,
	id string,
	attempts int,
	apply func(q *bun.UpdateQuery) *bun.UpdateQuery,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	id = strings.TrimSpace(id)
	q := s.db.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", string(core.DeliveryStatusPending))
	if attempts >= 0 {
		q = q.Where("attempts = ?", attempts)
	}
	res, err := apply(q).Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkAffected(ctx, res, id)
}

func (s *DeliveryStore) checkAffected(ctx context.Context, res sql.Result, id string) error {
	if affected, _ := res.RowsAffected(); affected > 0 {
		return nil
	}
	exists, err := s.db.NewSelect().
		Model((*deliveryRecord)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrDeliveryNotFound
	}
	return core.ErrDeliveryConflict
}

func withAttempt(q *bun.UpdateQuery, result core.DeliveryAttemptResult) *bun.UpdateQuery {
	return q.
		Set("attempts = ?", result.Attempts).
		Set("last_response_code = ?", result.ResponseCode).
		Set("last_response_body = ?", truncateBody(result.ResponseBody)).
		Set("last_error = ?", result.Error).
		Set("last_attempt_at = ?", result.AttemptedAt.UTC())
}

// truncateBody cuts at a rune boundary and drops bytes a TEXT column
// rejects, so recording a response never fails on its content.
func truncateBody(body string) string {
	if len(body) > maxStoredResponseBody {
		cut := maxStoredResponseBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	body = strings.ToValidUTF8(body, "")
	return strings.ReplaceAll(body, "\x00", "")
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
