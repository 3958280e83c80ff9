package core

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

var (
	ErrWebhookNotFound      = errors.New("core: webhook not found")
	ErrDeliveryNotFound     = errors.New("core: delivery not found")
	ErrDeliveryNotRetryable = errors.New("core: delivery is not retryable")
	ErrDeliveryConflict     = errors.New("core: delivery state changed concurrently")
	ErrUnknownEvent         = errors.New("core: unknown webhook event")
	// ErrJobAlreadyQueued is returned by enqueuers that dropped a message as
	// a duplicate of one still held by the queue.
	ErrJobAlreadyQueued = errors.New("core: delivery job already queued")
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliveryStatusSuccess, DeliveryStatusFailed, DeliveryStatusExhausted:
		return true
	default:
		return false
	}
}

// Retryable reports whether an operator may reset the delivery back to pending.
func (s DeliveryStatus) Retryable() bool {
	return s == DeliveryStatusFailed || s == DeliveryStatusExhausted
}

func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	status := DeliveryStatus(strings.TrimSpace(strings.ToLower(value)))
	switch status {
	case DeliveryStatusPending, DeliveryStatusSuccess, DeliveryStatusFailed, DeliveryStatusExhausted:
		return status, nil
	default:
		return "", fmt.Errorf("core: invalid delivery status %q", value)
	}
}

type Webhook struct {
	ID             string
	OrganizationID string
	Name           string
	URL            string
	Secret         string
	Events         []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Subscribes reports whether the webhook is active and lists event.
func (w Webhook) Subscribes(event string) bool {
	if !w.IsActive {
		return false
	}
	event = NormalizeEventName(event)
	for _, candidate := range w.Events {
		if NormalizeEventName(candidate) == event {
			return true
		}
	}
	return false
}

type CreateWebhookInput struct {
	ID             string
	OrganizationID string
	Name           string
	URL            string
	Secret         string
	Events         []string
	IsActive       bool
}

type UpdateWebhookInput struct {
	OrganizationID string
	ID             string
	Name           *string
	URL            *string
	Events         []string
	IsActive       *bool
}

type WebhookDelivery struct {
	ID               string
	OrganizationID   string
	WebhookID        string
	Event            string
	Payload          []byte
	Status           DeliveryStatus
	Attempts         int
	LastResponseCode int
	LastResponseBody string
	LastError        string
	NextAttemptAt    *time.Time
	LastAttemptAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CreateDeliveryInput struct {
	ID             string
	OrganizationID string
	WebhookID      string
	Event          string
	Payload        []byte
	NextAttemptAt  time.Time
}

// DeliveryAttemptResult captures one HTTP attempt. Attempts is the count after
// the attempt, so stores can guard on Attempts-1.
type DeliveryAttemptResult struct {
	Attempts     int
	ResponseCode int
	ResponseBody string
	Error        string
	AttemptedAt  time.Time
}

type DeliveryFilter struct {
	OrganizationID string
	WebhookID      string
	Status         DeliveryStatus
	Page           int
	PerPage        int
}

const (
	DefaultDeliveryPerPage = 20
	MaxDeliveryPerPage     = 100
)

func (f DeliveryFilter) Normalize() DeliveryFilter {
	out := f
	out.OrganizationID = strings.TrimSpace(out.OrganizationID)
	out.WebhookID = strings.TrimSpace(out.WebhookID)
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PerPage <= 0 {
		out.PerPage = DefaultDeliveryPerPage
	}
	if out.PerPage > MaxDeliveryPerPage {
		out.PerPage = MaxDeliveryPerPage
	}
	return out
}

func (f DeliveryFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PerPage
}

type DeliveryPage struct {
	Items   []WebhookDelivery
	Total   int
	Page    int
	PerPage int
}

// Envelope is the JSON body posted to webhook endpoints.
type Envelope struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type DispatchResult struct {
	Matched     int
	Created     int
	Enqueued    int
	DeliveryIDs []string
}

type AttemptOutcome struct {
	DeliveryID   string
	Status       DeliveryStatus
	Attempts     int
	ResponseCode int
	RetryAfter   time.Duration
	Skipped      bool
}

type SweepStats struct {
	Scanned  int
	Enqueued int
	// AlreadyQueued counts due deliveries the queue still held a job for.
	AlreadyQueued int
}

type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DomainEvent is the argument business code passes to internal actions that
// are bound to webhook events.
type DomainEvent struct {
	OrganizationID string
	Entity         map[string]any
	Actor          *Actor
	Changes        map[string]any
}

type CreateWebhookRequest struct {
	OrganizationID string
	Name           string
	URL            string
	Events         []string
	IsActive       *bool
}

type UpdateWebhookRequest struct {
	OrganizationID string
	ID             string
	Name           *string
	URL            *string
	Events         []string
	IsActive       *bool
}

func NormalizeEventName(event string) string {
	return strings.TrimSpace(strings.ToLower(event))
}

// NormalizeEvents trims, lowercases, de-duplicates and sorts event names.
func NormalizeEvents(events []string) []string {
	if len(events) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, event := range events {
		event = NormalizeEventName(event)
		if event == "" {
			continue
		}
		if _, ok := seen[event]; ok {
			continue
		}
		seen[event] = struct{}{}
		out = append(out, event)
	}
	sort.Strings(out)
	return out
}

func validateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("core: webhook url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("core: invalid webhook url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("core: invalid webhook url scheme %q", parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("core: invalid webhook url host")
	}
	return nil
}

func (r CreateWebhookRequest) Validate() error {
	if strings.TrimSpace(r.OrganizationID) == "" {
		return fmt.Errorf("core: organization id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("core: webhook name is required")
	}
	if err := validateWebhookURL(r.URL); err != nil {
		return err
	}
	if len(NormalizeEvents(r.Events)) == 0 {
		return fmt.Errorf("core: webhook events are required")
	}
	return nil
}

func (r UpdateWebhookRequest) Validate() error {
	if strings.TrimSpace(r.OrganizationID) == "" {
		return fmt.Errorf("core: organization id is required")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("core: webhook id is required")
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return fmt.Errorf("core: webhook name is required")
	}
	if r.URL != nil {
		if err := validateWebhookURL(*r.URL); err != nil {
			return err
		}
	}
	if r.Events != nil && len(NormalizeEvents(r.Events)) == 0 {
		return fmt.Errorf("core: webhook events are required")
	}
	return nil
}
