package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()

	asyncProducer := newFakeAsyncProducer()

	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "messenger",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "messenger-service",
		Env:  "test",
	}, zaptest.NewLogger(t))

	return publisher, asyncProducer
}

func TestPublishRelationshipUpdated(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	updatedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	event := domain.RelationshipUpdatedEvent{
		EventID:        "event-123",
		ActorID:        11,
		TargetID:       22,
		RequestedState: "friend",
		UpdatedAt:      updatedAt,
		Metadata:       map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishRelationshipUpdated(context.Background(), event); err != nil {
		t.Fatalf("PublishRelationshipUpdated returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "messenger.relationship.updated" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_type"]; got != "messenger.relationship.updated" {
			t.Fatalf("unexpected event_type: %v", got)
		}

		if got := envelope["account_id"]; got != "11" {
			t.Fatalf("unexpected account_id: %v", got)
		}

		timestamp, ok := envelope["timestamp"].(string)
		if !ok {
			t.Fatalf("timestamp not a string: %T", envelope["timestamp"])
		}
		if timestamp != updatedAt.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %s", timestamp)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["requested_state"]; got != event.RequestedState {
			t.Fatalf("unexpected requested_state: %v", got)
		}

		actorValue, ok := payload["actor_id"].(float64)
		if !ok {
			t.Fatalf("actor_id not a number: %T", payload["actor_id"])
		}
		if int64(actorValue) != event.ActorID {
			t.Fatalf("unexpected actor_id: %v", actorValue)
		}

		targetValue, ok := payload["target_id"].(float64)
		if !ok {
			t.Fatalf("target_id not a number: %T", payload["target_id"])
		}
		if int64(targetValue) != event.TargetID {
			t.Fatalf("unexpected target_id: %v", targetValue)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message on producer input channel")
	}
}

func TestPublishChatMessageRelayed(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	relayedAt := time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)
	event := domain.ChatMessageRelayedEvent{
		EventID:    "event-456",
		MessageID:  "msg-1",
		SenderID:   5,
		ReceiverID: 6,
		Delivered:  true,
		RelayedAt:  relayedAt,
	}

	if err := publisher.PublishChatMessageRelayed(context.Background(), event); err != nil {
		t.Fatalf("PublishChatMessageRelayed returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "messenger.chat.message.relayed" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}

		if got := payload["message_id"]; got != event.MessageID {
			t.Fatalf("unexpected message_id: %v", got)
		}

		delivered, ok := payload["delivered"].(bool)
		if !ok || !delivered {
			t.Fatalf("expected delivered true, got %v", payload["delivered"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected message on producer input channel")
	}
}

func TestPublishCanceledContext(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	// Fill the buffered input channel so publish has to wait on it.
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishAccountRegistered(ctx, domain.AccountRegisteredEvent{
		AccountID:    1,
		Username:     "marcus",
		Status:       "pending",
		RegisteredAt: time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
}
