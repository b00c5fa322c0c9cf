package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
)

// ChatRepository stores direct messages. Message bodies are sealed at rest
// with the shared field cipher when one is configured.
type ChatRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	fields  *security.FieldCipher
	builder squirrel.StatementBuilderType
}

// NewChatRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewChatRepository(exec pgExecutor, fields *security.FieldCipher) *ChatRepository {
	repo := &ChatRepository{
		exec:    exec,
		fields:  fields,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// AddMessage persists one relayed message. The message is stored even when
// the recipient is offline so it shows up in their next history sync.
func (r *ChatRepository) AddMessage(ctx context.Context, message domain.ChatMessage) error {
	content, err := r.seal([]byte(message.Content))
	if err != nil {
		return fmt.Errorf("seal message content: %w", err)
	}

	stmt, args, err := r.builder.Insert("messenger.chat_messages").
		Columns("id", "sender_id", "receiver_id", "content", "sent_at").
		Values(message.ID, message.SenderID, message.ReceiverID, content, message.SentAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert message sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert message: %w", mapError(err))
	}
	return nil
}

// ListChats returns the user's message history grouped by conversation
// partner. Each chat carries at most limitPerChat of the newest messages,
// ordered oldest first within the chat; limitPerChat <= 0 means no cap.
func (r *ChatRepository) ListChats(ctx context.Context, userID int64, limitPerChat int) ([]domain.Chat, error) {
	query := r.builder.
		Select("id", "sender_id", "receiver_id", "content", "sent_at").
		From("messenger.chat_messages").
		Where(squirrel.Or{
			squirrel.Eq{"sender_id": userID},
			squirrel.Eq{"receiver_id": userID},
		}).
		OrderBy("sent_at DESC")

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", mapError(err))
	}
	defer rows.Close()

	// Rows arrive newest first. Group per partner, cap each group, then
	// reverse so every chat reads oldest to newest.
	grouped := make(map[int64][]domain.ChatMessage)
	var order []int64
	for rows.Next() {
		var (
			msg     domain.ChatMessage
			content []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &content, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		plain, err := r.open(content)
		if err != nil {
			return nil, fmt.Errorf("open message content: %w", err)
		}
		msg.Content = string(plain)

		partner := msg.SenderID
		if partner == userID {
			partner = msg.ReceiverID
		}
		if limitPerChat > 0 && len(grouped[partner]) >= limitPerChat {
			continue
		}
		if _, seen := grouped[partner]; !seen {
			order = append(order, partner)
		}
		grouped[partner] = append(grouped[partner], msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", mapError(err))
	}

	chats := make([]domain.Chat, 0, len(order))
	for _, partner := range order {
		messages := grouped[partner]
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
		chats = append(chats, domain.Chat{PartnerID: partner, Messages: messages})
	}

	return chats, nil
}

func (r *ChatRepository) seal(value []byte) ([]byte, error) {
	if r.fields == nil || len(value) == 0 {
		return value, nil
	}
	return r.fields.Seal(value)
}

func (r *ChatRepository) open(sealed []byte) ([]byte, error) {
	if r.fields == nil || len(sealed) == 0 {
		return sealed, nil
	}
	return r.fields.Open(sealed)
}

var _ port.ChatRepository = (*ChatRepository)(nil)
