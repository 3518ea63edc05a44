package outbox

import (
	"context"
	"time"
)

// Event is a fact the checkout flow announces after it happened.
type Event interface {
	EventName() string
}

// Keyed events name the aggregate they belong to. Transports that partition
// use the key so one order's events are delivered in order.
type Keyed interface {
	Event
	AggregateKey() string
	EventTime() time.Time
}

type Handler func(ctx context.Context, e Event) error

// Publisher hands events to whoever listens. Delivery is asynchronous.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// FanInSubscriber also delivers every event, whatever its name, to one handler.
type FanInSubscriber interface {
	Subscriber
	SubscribeAll(h Handler)
}
