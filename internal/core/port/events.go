package port

import (
	"context"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountVerified(ctx context.Context, event domain.AccountVerifiedEvent) error
	PublishRelationshipUpdated(ctx context.Context, event domain.RelationshipUpdatedEvent) error
	PublishChatMessageRelayed(ctx context.Context, event domain.ChatMessageRelayedEvent) error
}
