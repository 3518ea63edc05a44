package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability/logctx"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "checkout.events"
	headerType   = "event_type"
	kafkaPeer    = "kafka"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter builds a writer for topic on the given brokers.
func NewWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type envelope struct {
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher writes domain events to Kafka, keyed by the aggregate they belong to
// so events of one order stay in one partition.
type Publisher struct {
	w   messageWriter
	log observability.Logger

	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewPublisher(w messageWriter, tel observability.Observability) *Publisher {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Publisher{
		w:            w,
		log:          tel.Logger().With(observability.F("component", "kafka_publisher")),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	msg, err := toMessage(e)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.w.WriteMessages(ctx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.extCounter.Add(1,
		observability.L("peer", kafkaPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", kafkaPeer),
		observability.L("endpoint", e.EventName()),
	)
	if err != nil {
		return fmt.Errorf("kafka: write %s: %w", e.EventName(), err)
	}
	return nil
}

// Forward returns a bus handler that relays every event to Kafka.
func (p *Publisher) Forward() domoutbox.Handler {
	return func(ctx context.Context, e domoutbox.Event) error {
		if err := p.Publish(ctx, e); err != nil {
			logctx.FromOr(ctx, p.log).Error("kafka_forward_failed",
				observability.F("event", e.EventName()),
				observability.F("error", err.Error()),
			)
			return err
		}
		return nil
	}
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func toMessage(e domoutbox.Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal %s: %w", e.EventName(), err)
	}
	key, occurredAt := describe(e)
	value, err := json.Marshal(envelope{
		Type:       e.EventName(),
		Key:        key,
		OccurredAt: occurredAt,
		Payload:    payload,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal envelope: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerType, Value: []byte(e.EventName())},
		},
	}, nil
}

func describe(e domoutbox.Event) (string, time.Time) {
	if k, ok := e.(domoutbox.Keyed); ok {
		return k.AggregateKey(), k.EventTime()
	}
	return e.EventName(), time.Now().UTC()
}
