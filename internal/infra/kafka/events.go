package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, accountID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	var account string
	if accountID > 0 {
		account = strconv.FormatInt(accountID, 10)
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: account,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes messenger.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    int64          `json:"account_id"`
		Username     string         `json:"username"`
		Email        string         `json:"email,omitempty"`
		Status       string         `json:"status"`
		RegisteredAt time.Time      `json:"registered_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:    event.AccountID,
		Username:     event.Username,
		Email:        event.Email,
		Status:       event.Status,
		RegisteredAt: event.RegisteredAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "messenger.account.registered", event.AccountID, event.RegisteredAt, payload)
}

// PublishAccountVerified publishes messenger.account.verified events.
func (p *EventPublisher) PublishAccountVerified(ctx context.Context, event domain.AccountVerifiedEvent) error {
	payload := struct {
		AccountID  int64          `json:"account_id"`
		VerifiedAt time.Time      `json:"verified_at"`
		Attempts   int            `json:"attempts"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		VerifiedAt: event.VerifiedAt.UTC(),
		Attempts:   event.Attempts,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "messenger.account.verified", event.AccountID, event.VerifiedAt, payload)
}

// PublishRelationshipUpdated publishes messenger.relationship.updated events.
func (p *EventPublisher) PublishRelationshipUpdated(ctx context.Context, event domain.RelationshipUpdatedEvent) error {
	payload := struct {
		ActorID        int64          `json:"actor_id"`
		TargetID       int64          `json:"target_id"`
		RequestedState string         `json:"requested_state"`
		UpdatedAt      time.Time      `json:"updated_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		ActorID:        event.ActorID,
		TargetID:       event.TargetID,
		RequestedState: event.RequestedState,
		UpdatedAt:      event.UpdatedAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "messenger.relationship.updated", event.ActorID, event.UpdatedAt, payload)
}

// PublishChatMessageRelayed publishes messenger.chat.message.relayed events.
func (p *EventPublisher) PublishChatMessageRelayed(ctx context.Context, event domain.ChatMessageRelayedEvent) error {
	payload := struct {
		MessageID  string         `json:"message_id"`
		SenderID   int64          `json:"sender_id"`
		ReceiverID int64          `json:"receiver_id"`
		Delivered  bool           `json:"delivered"`
		RelayedAt  time.Time      `json:"relayed_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		MessageID:  event.MessageID,
		SenderID:   event.SenderID,
		ReceiverID: event.ReceiverID,
		Delivered:  event.Delivered,
		RelayedAt:  event.RelayedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "messenger.chat.message.relayed", event.SenderID, event.RelayedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
