package port

import (
	"context"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// ChatRepository persists direct messages and serves chat history.
type ChatRepository interface {
	AddMessage(ctx context.Context, message domain.ChatMessage) error
	ListChats(ctx context.Context, userID int64, limitPerChat int) ([]domain.Chat, error)
}
