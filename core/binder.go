package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const PayloadVersion = "1"

// PayloadShaper converts the arguments an internal action received into the
// organization the event belongs to and a JSON-serializable payload.
type PayloadShaper func(args ...any) (organizationID string, payload map[string]any, err error)

// EventBinding maps an internal action name to a public webhook event.
type EventBinding struct {
	Action   string
	Event    string
	Shape    PayloadShaper
	Priority int
}

func DefaultEventBindings() []EventBinding {
	pairs := []struct {
		action string
		event  string
	}{
		{ActionProductCreated, EventProductCreated},
		{ActionProductUpdated, EventProductUpdated},
		{ActionProductDeleted, EventProductDeleted},
		{ActionProductLowStock, EventProductLowStock},
		{ActionProductOutOfStock, EventProductOutOfStock},
		{ActionStockAdjusted, EventStockAdjusted},
		{ActionOrderCreated, EventOrderCreated},
		{ActionOrderUpdated, EventOrderUpdated},
		{ActionOrderStatusChanged, EventOrderStatusChanged},
		{ActionOrderApproved, EventOrderApproved},
		{ActionOrderRejected, EventOrderRejected},
		{ActionPurchaseOrderCreated, EventPurchaseOrderCreated},
		{ActionPurchaseOrderReceived, EventPurchaseOrderReceived},
		{ActionPurchaseOrderCancelled, EventPurchaseOrderCancelled},
	}
	out := make([]EventBinding, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, EventBinding{
			Action: pair.action,
			Event:  pair.event,
			Shape:  ShapeDomainEvent,
		})
	}
	return out
}

// ShapeDomainEvent expects a DomainEvent (or pointer) as the first argument
// and produces the versioned payload {version, data, actor, changes}.
func ShapeDomainEvent(args ...any) (string, map[string]any, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("core: domain event argument is required")
	}
	var event DomainEvent
	switch value := args[0].(type) {
	case DomainEvent:
		event = value
	case *DomainEvent:
		if value == nil {
			return "", nil, fmt.Errorf("core: domain event argument is required")
		}
		event = *value
	default:
		return "", nil, fmt.Errorf("core: expected DomainEvent argument, got %T", args[0])
	}
	return event.OrganizationID, DomainEventPayload(event), nil
}

func DomainEventPayload(event DomainEvent) map[string]any {
	data := event.Entity
	if data == nil {
		data = map[string]any{}
	}
	payload := map[string]any{
		"version": PayloadVersion,
		"data":    data,
	}
	if event.Actor != nil && strings.TrimSpace(event.Actor.ID) != "" {
		payload["actor"] = map[string]any{
			"id":    event.Actor.ID,
			"name":  event.Actor.Name,
			"email": event.Actor.Email,
		}
	}
	if len(event.Changes) > 0 {
		payload["changes"] = event.Changes
	}
	return payload
}

// EventBinder subscribes to internal actions and forwards them to the
// dispatcher under their public event name. It is the only place internal
// action names are translated. Failures are logged and never returned to the
// code that emitted the action.
type EventBinder struct {
	dispatcher WebhookDispatcher
	bindings   []EventBinding
	deps       componentDeps

	mu       sync.Mutex
	registry *HookRegistry
	handles  []HookHandle
}

func NewEventBinder(dispatcher WebhookDispatcher, bindings []EventBinding, opts ...ComponentOption) (*EventBinder, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("core: webhook dispatcher is required")
	}
	normalized := make([]EventBinding, 0, len(bindings))
	seen := map[string]struct{}{}
	for _, binding := range bindings {
		binding.Action = strings.TrimSpace(binding.Action)
		binding.Event = NormalizeEventName(binding.Event)
		if binding.Action == "" || binding.Event == "" {
			return nil, fmt.Errorf("core: event binding requires action and event")
		}
		key := binding.Action + "->" + binding.Event
		if _, exists := seen[key]; exists {
			return nil, fmt.Errorf("core: event binding %q already registered", key)
		}
		seen[key] = struct{}{}
		if binding.Shape == nil {
			binding.Shape = ShapeDomainEvent
		}
		normalized = append(normalized, binding)
	}
	return &EventBinder{
		dispatcher: dispatcher,
		bindings:   normalized,
		deps:       newComponentDeps(opts),
	}, nil
}

func (b *EventBinder) Bindings() []EventBinding {
	if b == nil {
		return nil
	}
	return append([]EventBinding(nil), b.bindings...)
}

// Bind registers one action per binding. Binding again first removes the
// previous registrations.
func (b *EventBinder) Bind(registry *HookRegistry) []HookHandle {
	if b == nil || registry == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbindLocked()
	handles := make([]HookHandle, 0, len(b.bindings))
	for _, binding := range b.bindings {
		binding := binding
		opts := []HookOption{WithLabel("webhooks.binder:" + binding.Event)}
		if binding.Priority != 0 {
			opts = append(opts, WithPriority(binding.Priority))
		}
		handle := registry.AddAction(binding.Action, func(ctx context.Context, args ...any) error {
			b.forward(ctx, registry, binding, args)
			return nil
		}, opts...)
		handles = append(handles, handle)
	}
	b.registry = registry
	b.handles = handles
	return append([]HookHandle(nil), handles...)
}

func (b *EventBinder) Unbind() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unbindLocked()
}

func (b *EventBinder) unbindLocked() {
	if b.registry != nil {
		for _, handle := range b.handles {
			b.registry.RemoveAction(handle)
		}
	}
	b.registry = nil
	b.handles = nil
}

func (b *EventBinder) forward(ctx context.Context, registry *HookRegistry, binding EventBinding, args []any) {
	fields := map[string]any{
		"action": binding.Action,
		"event":  binding.Event,
	}
	organizationID, payload, err := binding.Shape(args...)
	if err != nil {
		fields["error"] = err.Error()
		logWithLevel(ctx, b.deps.logger, "error", "webhook event shaping failed", fields)
		return
	}
	organizationID = strings.TrimSpace(organizationID)
	fields["organization_id"] = organizationID
	if organizationID == "" {
		logWithLevel(ctx, b.deps.logger, "warn", "webhook event skipped without organization", fields)
		return
	}

	filterArgs := append([]any{binding.Event}, args...)
	filtered := registry.ApplyFilters(ctx, PayloadFilterName(binding.Event), payload, filterArgs...)

	result, err := b.dispatcher.Dispatch(ctx, binding.Event, filtered, organizationID)
	fields["matched"] = result.Matched
	fields["created"] = result.Created
	if err != nil {
		fields["error"] = err.Error()
		fields["delivery_ids"] = strings.Join(result.DeliveryIDs, ",")
		logWithLevel(ctx, b.deps.logger, "error", "webhook dispatch failed", fields)
		return
	}
	if result.Created > 0 {
		logWithLevel(ctx, b.deps.logger, "debug", "webhook event dispatched", fields)
	}
}
