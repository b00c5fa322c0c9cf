package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

const defaultChatHistoryLimit = 200

// ChatService persists direct messages and serves per-user history. Live
// delivery to the receiving connection is the transport's job; this service
// only guarantees the message survives for the next history sync.
type ChatService struct {
	accounts      port.AccountRepository
	relationships port.RelationshipRepository
	chats         port.ChatRepository
	events        port.EventPublisher
	logger        *zap.Logger
}

// NewChatService constructs a chat service.
func NewChatService(accounts port.AccountRepository, relationships port.RelationshipRepository, chats port.ChatRepository, events port.EventPublisher, log *zap.Logger) *ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		accounts:      accounts,
		relationships: relationships,
		chats:         chats,
		events:        events,
		logger:        log,
	}
}

// Send validates and persists one message from senderID to receiverID.
// Messages toward a user who blocked the sender are rejected.
func (s *ChatService) Send(ctx context.Context, senderID, receiverID int64, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" || receiverID <= 0 {
		return nil, ErrPayloadMissing
	}

	if _, err := s.accounts.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup receiver: %w", err)
	}

	if _, err := s.relationships.GetBlockedEdge(ctx, receiverID, senderID); err == nil {
		return nil, ErrUserIsBlocked
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check block precedence: %w", err)
	}

	message := domain.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}

	if err := s.chats.AddMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	return &message, nil
}

// MarkRelayed records the delivery outcome of a persisted message.
func (s *ChatService) MarkRelayed(ctx context.Context, message domain.ChatMessage, delivered bool) {
	if s.events == nil {
		return
	}
	event := domain.ChatMessageRelayedEvent{
		EventID:    uuid.NewString(),
		MessageID:  message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Delivered:  delivered,
		RelayedAt:  time.Now().UTC(),
	}
	if err := s.events.PublishChatMessageRelayed(ctx, event); err != nil {
		s.logger.Warn("publish chat message relayed event failed", zap.Error(err))
	}
}

// History returns the user's chats grouped by partner, capped per chat.
func (s *ChatService) History(ctx context.Context, userID int64) ([]domain.Chat, error) {
	chats, err := s.chats.ListChats(ctx, userID, defaultChatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}
