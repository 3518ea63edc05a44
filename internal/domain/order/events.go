package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderPlacedEvent is emitted once a checkout has been committed.
type OrderPlacedEvent struct {
	OrderID         string
	ExternalOrderID string
	CustomerID      string
	Total           decimal.Decimal
	Items           []Item
	OccurredAt      time.Time
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func (e OrderPlacedEvent) AggregateKey() string { return e.OrderID }

func (e OrderPlacedEvent) EventTime() time.Time { return e.OccurredAt }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:         o.ID,
		ExternalOrderID: o.ExternalOrderID,
		CustomerID:      o.CustomerID,
		Total:           o.Total,
		Items:           append([]Item(nil), o.Items...),
		OccurredAt:      time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted when fulfillment moves an order forward.
type OrderStatusChangedEvent struct {
	OrderID    string
	CustomerID string
	From       Status
	To         Status
	OccurredAt time.Time
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func (e OrderStatusChangedEvent) AggregateKey() string { return e.OrderID }

func (e OrderStatusChangedEvent) EventTime() time.Time { return e.OccurredAt }

func NewOrderStatusChangedEvent(o *Order, from Status) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		From:       from,
		To:         o.Status,
		OccurredAt: time.Now().UTC(),
	}
}
