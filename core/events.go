package core

import (
	"sort"
	"strings"
)

// Public webhook event names. These are the only names tenants subscribe to.
const (
	EventProductCreated         = "product.created"
	EventProductUpdated         = "product.updated"
	EventProductDeleted         = "product.deleted"
	EventProductLowStock        = "product.low_stock"
	EventProductOutOfStock      = "product.out_of_stock"
	EventStockAdjusted          = "stock.adjusted"
	EventOrderCreated           = "order.created"
	EventOrderUpdated           = "order.updated"
	EventOrderStatusChanged     = "order.status_changed"
	EventOrderApproved          = "order.approved"
	EventOrderRejected          = "order.rejected"
	EventPurchaseOrderCreated   = "purchase_order.created"
	EventPurchaseOrderReceived  = "purchase_order.received"
	EventPurchaseOrderCancelled = "purchase_order.cancelled"
	EventWebhookTest            = "webhook.test"
)

// Internal action names emitted by business code.
const (
	ActionProductCreated         = "inventory.product.created"
	ActionProductUpdated         = "inventory.product.updated"
	ActionProductDeleted         = "inventory.product.deleted"
	ActionProductLowStock        = "inventory.product.low_stock"
	ActionProductOutOfStock      = "inventory.product.out_of_stock"
	ActionStockAdjusted          = "inventory.stock.adjusted"
	ActionOrderCreated           = "inventory.order.created"
	ActionOrderUpdated           = "inventory.order.updated"
	ActionOrderStatusChanged     = "inventory.order.status_changed"
	ActionOrderApproved          = "inventory.order.approved"
	ActionOrderRejected          = "inventory.order.rejected"
	ActionPurchaseOrderCreated   = "inventory.purchase_order.created"
	ActionPurchaseOrderReceived  = "inventory.purchase_order.received"
	ActionPurchaseOrderCancelled = "inventory.purchase_order.cancelled"
)

const PayloadFilterPrefix = "webhooks.payload."

// Typed entry points for business code.
var (
	ProductCreated         = NewAction[DomainEvent](ActionProductCreated)
	ProductUpdated         = NewAction[DomainEvent](ActionProductUpdated)
	ProductDeleted         = NewAction[DomainEvent](ActionProductDeleted)
	ProductLowStock        = NewAction[DomainEvent](ActionProductLowStock)
	ProductOutOfStock      = NewAction[DomainEvent](ActionProductOutOfStock)
	StockAdjusted          = NewAction[DomainEvent](ActionStockAdjusted)
	OrderCreated           = NewAction[DomainEvent](ActionOrderCreated)
	OrderUpdated           = NewAction[DomainEvent](ActionOrderUpdated)
	OrderStatusChanged     = NewAction[DomainEvent](ActionOrderStatusChanged)
	OrderApproved          = NewAction[DomainEvent](ActionOrderApproved)
	OrderRejected          = NewAction[DomainEvent](ActionOrderRejected)
	PurchaseOrderCreated   = NewAction[DomainEvent](ActionPurchaseOrderCreated)
	PurchaseOrderReceived  = NewAction[DomainEvent](ActionPurchaseOrderReceived)
	PurchaseOrderCancelled = NewAction[DomainEvent](ActionPurchaseOrderCancelled)
)

// PayloadFilter returns the filter consulted before an event payload is
// dispatched. Filters receive the shaped payload and the DomainEvent.
func PayloadFilter(event string) Filter[map[string]any] {
	return NewFilter[map[string]any](PayloadFilterName(event))
}

func PayloadFilterName(event string) string {
	return PayloadFilterPrefix + NormalizeEventName(event)
}

// KnownEvents lists the public vocabulary of the default bindings plus the
// synthetic test event, sorted.
func KnownEvents() []string {
	return EventsFromBindings(DefaultEventBindings())
}

func EventsFromBindings(bindings []EventBinding) []string {
	seen := map[string]struct{}{EventWebhookTest: {}}
	for _, binding := range bindings {
		if event := NormalizeEventName(binding.Event); event != "" {
			seen[event] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for event := range seen {
		out = append(out, event)
	}
	sort.Strings(out)
	return out
}

func containsEvent(events []string, event string) bool {
	event = NormalizeEventName(event)
	for _, candidate := range events {
		if strings.EqualFold(strings.TrimSpace(candidate), event) {
			return true
		}
	}
	return false
}
