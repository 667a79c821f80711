package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/vibast-solutions/ms-go-checkout/app/entity"
)

type fakeSender struct {
	sent   []*sarama.ProducerMessage
	err    error
	closed bool
}

func (s *fakeSender) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	s.sent = append(s.sent, msg)
	return 0, int64(len(s.sent)), nil
}

func (s *fakeSender) Close() error {
	s.closed = true
	return nil
}

func TestKafkaPublisherPublishesKeyedEvent(t *testing.T) {
	sender := &fakeSender{}
	publisher := NewKafkaPublisher(sender, "")

	err := publisher.PublishOrderMaterialized(context.Background(), &entity.Transaction{
		SessionID:       "S1",
		PaymentIntentID: "pi_1",
		AccountLabel:    "A",
		AmountCents:     5090,
		Currency:        "EUR",
		OrderID:         "o1",
		OrderNumber:     "#1001",
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}

	msg := sender.sent[0]
	if msg.Topic != DefaultOrderTopic {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "S1" {
		t.Fatalf("expected session key, got %s", key)
	}

	raw, _ := msg.Value.Encode()
	var event OrderMaterializedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.EventType != EventTypeOrderMaterialized || event.AmountCents != 5090 || event.OrderNumber != "#1001" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestKafkaPublisherWrapsSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	publisher := NewKafkaPublisher(sender, "orders")

	if err := publisher.PublishOrderMaterialized(context.Background(), &entity.Transaction{SessionID: "S1"}); err == nil {
		t.Fatal("expected error")
	}
	if err := publisher.Close(); err != nil || !sender.closed {
		t.Fatal("expected producer to be closed")
	}
}
