package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"go.opentelemetry.io/otel"
)

const (
	DefaultOrderTopic          = "checkout.order.materialized"
	EventTypeOrderMaterialized = "order.materialized"
)

type OrderMaterializedEvent struct {
	EventType       string    `json:"event_type"`
	SessionID       string    `json:"session_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	AccountLabel    string    `json:"account_label"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	OrderID         string    `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	Email           string    `json:"email,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type NoopPublisher struct{}

func (NoopPublisher) PublishOrderMaterialized(context.Context, *entity.Transaction) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}

type messageSender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type KafkaPublisher struct {
	producer messageSender
	topic    string
	logger   logrus.FieldLogger
}

func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

func NewKafkaPublisher(producer messageSender, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultOrderTopic
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   factory.NewModuleLogger("order-events"),
	}
}

func (p *KafkaPublisher) PublishOrderMaterialized(ctx context.Context, txn *entity.Transaction) error {
	payload, err := json.Marshal(OrderMaterializedEvent{
		EventType:       EventTypeOrderMaterialized,
		SessionID:       txn.SessionID,
		PaymentIntentID: txn.PaymentIntentID,
		AccountLabel:    txn.AccountLabel,
		AmountCents:     txn.AmountCents,
		Currency:        txn.Currency,
		OrderID:         txn.OrderID,
		OrderNumber:     txn.OrderNumber,
		Email:           txn.Email,
		OccurredAt:      txn.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	carrier := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(txn.SessionID),
		Value:   sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader(carrier),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":      p.topic,
		"session_id": txn.SessionID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("order event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// headerCarrier adapts Kafka record headers to the otel TextMapCarrier.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
