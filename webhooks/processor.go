package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hooks/core"
)

const defaultMaxBodyBytes int64 = 1 << 20

type Event struct {
	DeliveryID string
	Event      string
	Payload    json.RawMessage
	Timestamp  time.Time
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// DeliveryLedger remembers delivery ids that were handled. Claim reports
// false when the id is already claimed or done.
type DeliveryLedger interface {
	Claim(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

type Result struct {
	Accepted   bool
	Deduped    bool
	StatusCode int
	DeliveryID string
	Event      string
}

type Processor struct {
	Verifier     Verifier
	Ledger       DeliveryLedger
	Handler      Handler
	MaxBodyBytes int64
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler) *Processor {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Processor{
		Verifier:     verifier,
		Ledger:       ledger,
		Handler:      handler,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.Handler == nil {
		return Result{StatusCode: http.StatusInternalServerError}, fmt.Errorf("webhooks: processor requires a handler")
	}
	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return Result{StatusCode: http.StatusUnauthorized}, err
		}
	}

	var envelope core.Envelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return Result{StatusCode: http.StatusBadRequest}, fmt.Errorf("webhooks: decode envelope: %w", err)
	}
	var raw struct {
		Payload json.RawMessage `json:"payload"`
	}
	_ = json.Unmarshal(req.Body, &raw)

	deliveryID := headerValue(req.Headers, core.HeaderDelivery)
	if deliveryID == "" {
		deliveryID = strings.TrimSpace(envelope.ID)
	}
	if deliveryID == "" {
		return Result{StatusCode: http.StatusBadRequest}, fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
	result := Result{DeliveryID: deliveryID, Event: envelope.Event}

	if p.Ledger != nil {
		claimed, err := p.Ledger.Claim(ctx, deliveryID)
		if err != nil {
			result.StatusCode = http.StatusInternalServerError
			return result, err
		}
		if !claimed {
			result.Accepted = true
			result.Deduped = true
			result.StatusCode = http.StatusOK
			return result, nil
		}
	}

	err := p.Handler.Handle(ctx, Event{
		DeliveryID: deliveryID,
		Event:      envelope.Event,
		Payload:    raw.Payload,
		Timestamp:  envelope.Timestamp,
	})
	if err != nil {
		if p.Ledger != nil {
			_ = p.Ledger.Release(ctx, deliveryID)
		}
		result.StatusCode = http.StatusInternalServerError
		return result, err
	}
	result.Accepted = true
	result.StatusCode = http.StatusOK
	return result, nil
}

// ServeHTTP adapts the processor to net/http.
func (p *Processor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := defaultMaxBodyBytes
	if p != nil && p.MaxBodyBytes > 0 {
		limit = p.MaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	headers := make(map[string]string, len(r.Header))
	for key := range r.Header {
		headers[key] = r.Header.Get(key)
	}
	result, _ := p.Process(r.Context(), Request{Headers: headers, Body: body})
	w.WriteHeader(result.StatusCode)
}

type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: map[string]struct{}{}}
}

func (l *MemoryLedger) Claim(_ context.Context, deliveryID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[deliveryID]; ok {
		return false, nil
	}
	l.seen[deliveryID] = struct{}{}
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, deliveryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, deliveryID)
	return nil
}

var _ http.Handler = (*Processor)(nil)
