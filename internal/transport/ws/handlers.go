package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
	"github.com/arklim/social-platform-messenger/internal/repository"
	"github.com/arklim/social-platform-messenger/internal/usecase"
)

// Handlers implements the business side of every routable opcode. One
// instance serves all connections; per-connection state lives in the
// registry session handed over by the router.
type Handlers struct {
	accounts      *usecase.AccountService
	verification  *usecase.VerificationService
	relationships *usecase.RelationshipService
	chats         *usecase.ChatService

	registry *Registry
	logger   *zap.Logger
	metrics  *Metrics

	// onUnavailable fires when the datastore looks gone rather than
	// merely busy. The server reacts by draining every session.
	onUnavailable func()
}

// NewHandlers wires the opcode handlers to the application services.
func NewHandlers(
	accounts *usecase.AccountService,
	verification *usecase.VerificationService,
	relationships *usecase.RelationshipService,
	chats *usecase.ChatService,
	registry *Registry,
	log *zap.Logger,
) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		accounts:      accounts,
		verification:  verification,
		relationships: relationships,
		chats:         chats,
		registry:      registry,
		logger:        log,
	}
}

// OnUnavailable registers the drain trigger invoked on datastore
// connectivity loss.
func (h *Handlers) OnUnavailable(fn func()) { h.onUnavailable = fn }

// SetMetrics attaches the socket collectors. A nil receiver-safe
// metrics handle keeps handlers usable in tests without a registry.
func (h *Handlers) SetMetrics(m *Metrics) { h.metrics = m }

// errorInfoFor translates service errors into wire error codes. Unknown
// errors map to the generic code so internals never leak to clients.
func errorInfoFor(err error) domain.ErrorInfo {
	var duplicate *usecase.DuplicateAccountError
	var rateLimited *usecase.RateLimitExceededError

	switch {
	case err == nil:
		return domain.NoError
	case errors.As(err, &duplicate):
		return domain.ErrorInfo{Code: domain.ErrCodeAccountCreation, Field: duplicate.Field}
	case errors.As(err, &rateLimited):
		return domain.ErrorInfo{Code: domain.ErrCodeRateLimited, Field: rateLimited.Scope}
	case errors.Is(err, usecase.ErrPayloadMissing):
		return domain.ErrorInfo{Code: domain.ErrCodePayloadDataMissing}
	case errors.Is(err, usecase.ErrWeakPassword):
		return domain.ErrorInfo{Code: domain.ErrCodeWeakPassword}
	case errors.Is(err, usecase.ErrWrongLoginData):
		return domain.ErrorInfo{Code: domain.ErrCodeWrongLoginData}
	case errors.Is(err, usecase.ErrUserNotFound):
		return domain.ErrorInfo{Code: domain.ErrCodeUserNotFound}
	case errors.Is(err, usecase.ErrUserIsBlocked):
		return domain.ErrorInfo{Code: domain.ErrCodeUserIsBlocked}
	case errors.Is(err, usecase.ErrNoDataEntries):
		return domain.ErrorInfo{Code: domain.ErrCodeNoDataEntries}
	case errors.Is(err, repository.ErrUnavailable):
		return domain.ErrorInfo{Code: domain.ErrCodeUnavailable}
	default:
		return domain.ErrorInfo{Code: domain.ErrCodeUnknown}
	}
}

// reportUnavailable triggers the server drain when a service error means
// the datastore is unreachable.
func (h *Handlers) reportUnavailable(err error) {
	if err != nil && errors.Is(err, repository.ErrUnavailable) && h.onUnavailable != nil {
		h.onUnavailable()
	}
}

// handleReceiveAes finishes the key exchange: the client's AES key and
// IV arrive RSA-encrypted, and the session flips to the established
// phase before the acknowledgement goes out.
func (h *Handlers) handleReceiveAes(ctx context.Context, conn *Conn, raw json.RawMessage) error {
	var payload sessionKeyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: parse session key: %v", ErrProtocolFault, err)
	}

	key, iv, err := payload.material()
	if err != nil {
		return fmt.Errorf("%w: decode key material: %v", ErrCryptoFault, err)
	}

	cipher, err := security.NewSessionCipher(key, iv)
	if err != nil {
		return fmt.Errorf("%w: build session cipher: %v", ErrCryptoFault, err)
	}

	conn.EstablishCipher(cipher)
	return conn.SendPayload(ctx, readyPayload{OpCode: OpReadyToReceive})
}

func (h *Handlers) handleCreateAccount(ctx context.Context, conn *Conn, raw json.RawMessage) error {
	var req createAccountRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: parse create account request: %v", ErrProtocolFault, err)
	}

	account, err := h.accounts.CreateAccount(ctx, usecase.CreateAccountInput{
		Username:      req.Username,
		Discriminator: req.Discriminator,
		Email:         req.Email,
		Password:      req.Password,
		Biography:     req.Biography,
		Birthday:      req.Birthday,
	})
	if err != nil {
		h.reportUnavailable(err)
		return conn.SendPayload(ctx, accountAnswer{OpCode: OpAnswerToCreateAccount, Error: errorInfoFor(err)})
	}

	token, err := h.accounts.IssueAutoLoginToken(ctx, account.ID)
	if err != nil {
		h.logger.Warn("issue auto-login token failed", zap.Int64("account_id", account.ID), zap.Error(err))
		token = ""
	}

	record, err := h.verification.IssueCode(ctx, *account)
	if err != nil {
		h.logger.Warn("issue verification code failed", zap.Int64("account_id", account.ID), zap.Error(err))
	} else {
		h.registry.SetPending(conn.ID(), &record)
	}

	return conn.SendPayload(ctx, accountAnswer{
		OpCode: OpAnswerToCreateAccount,
		Error:  domain.NoError,
		User:   viewOf(*account),
		Token:  token,
	})
}

func (h *Handlers) handleLogin(ctx context.Context, conn *Conn, raw json.RawMessage) error {
	var req loginRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: parse login request: %v", ErrProtocolFault, err)
	}

	if req.Token != "" {
		return h.autoLogin(ctx, conn, req.Token)
	}

	if req.Email == "" || req.Password == "" {
		return conn.SendPayload(ctx, accountAnswer{
			OpCode: OpAnswerToLogin,
			Error:  domain.ErrorInfo{Code: domain.ErrCodePayloadDataMissing},
		})
	}

	account, err := h.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.reportUnavailable(err)
		return conn.SendPayload(ctx, accountAnswer{OpCode: OpAnswerToLogin, Error: errorInfoFor(err)})
	}

	// Two-factor accounts answer success but stay unbound until the
	// emailed code checks out.
	if account.TwoFactorEnabled {
		record, err := h.verification.IssueCode(ctx, *account)
		if err != nil {
			h.logger.Warn("issue verification code failed", zap.Int64("account_id", account.ID), zap.Error(err))
		} else {
			h.registry.SetPending(conn.ID(), &record)
		}
		return conn.SendPayload(ctx, accountAnswer{
			OpCode: OpAnswerToLogin,
			Error:  domain.NoError,
			User:   viewOf(*account),
		})
	}

	token, err := h.accounts.IssueAutoLoginToken(ctx, account.ID)
	if err != nil {
		h.logger.Warn("issue auto-login token failed", zap.Int64("account_id", account.ID), zap.Error(err))
		token = ""
	}

	h.registry.BindUser(conn.ID(), account.ID)

	if err := conn.SendPayload(ctx, accountAnswer{
		OpCode: OpAnswerToLogin,
		Error:  domain.NoError,
		User:   viewOf(*account),
		Token:  token,
	}); err != nil {
		return err
	}

	h.postLoginSync(ctx, conn, account.ID)
	return nil
}

func (h *Handlers) autoLogin(ctx context.Context, conn *Conn, token string) error {
	account, err := h.accounts.AutoLogin(ctx, token)
	if err != nil {
		h.reportUnavailable(err)
		return conn.SendPayload(ctx, accountAnswer{OpCode: OpAnswerToAutoLogin, Error: errorInfoFor(err)})
	}

	h.registry.BindUser(conn.ID(), account.ID)

	if err := conn.SendPayload(ctx, accountAnswer{
		OpCode: OpAnswerToAutoLogin,
		Error:  domain.NoError,
		User:   viewOf(*account),
	}); err != nil {
		return err
	}

	h.postLoginSync(ctx, conn, account.ID)
	return nil
}

func (h *Handlers) handleVerify(ctx context.Context, conn *Conn, raw json.RawMessage) error {
	var req verifyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: parse verify request: %v", ErrProtocolFault, err)
	}

	record := h.registry.Pending(conn.ID())

	result, err := h.verification.CheckCode(ctx, record, req.VerificationCode)
	if err != nil && record != nil {
		h.logger.Warn("verification check failed", zap.Int64("account_id", record.AccountID), zap.Error(err))
		h.reportUnavailable(err)
	}

	switch result {
	case usecase.CheckSuccess:
		h.registry.TakePending(conn.ID())
		h.registry.BindUser(conn.ID(), record.AccountID)
		if err := conn.SendPayload(ctx, verifyAnswer{OpCode: OpAnswerToVerify, Success: true}); err != nil {
			return err
		}
		h.postLoginSync(ctx, conn, record.AccountID)
		return nil
	case usecase.CheckExhausted:
		h.registry.TakePending(conn.ID())
		return conn.SendPayload(ctx, verifyAnswer{OpCode: OpVerificationWentWrong})
	default:
		return conn.SendPayload(ctx, verifyAnswer{OpCode: OpAnswerToVerify, Success: false})
	}
}

func (h *Handlers) handleRelationshipUpdate(ctx context.Context, conn *Conn, raw json.RawMessage) error {
	var req relationshipUpdateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: parse relationship update: %v", ErrProtocolFault, err)
	}

	actorID := conn.UserID()

	result, err := h.relationships.Update(ctx, actorID, req.Target, req.RequestedState)
	if err != nil {
		h.reportUnavailable(err)
		return conn.SendPayload(ctx, relationshipAnswer{OpCode: OpAnswerToRelationshipUpdate, Error: errorInfoFor(err)})
	}

	answer := relationshipAnswer{
		OpCode: OpAnswerToRelationshipUpdate,
		Error:  domain.NoError,
		Relationship: &domain.Relationship{
			UserID:         result.Target.ID,
			Username:       result.Target.Username,
			Discriminator:  result.Target.Discriminator,
			Biography:      result.Target.Biography,
			ProfilePicture: result.Target.ProfilePicture,
			State:          result.RequestedState,
		},
	}
	if err := conn.SendPayload(ctx, answer); err != nil {
		return err
	}

	h.notifyRelationshipChange(ctx, result)
	return nil
}

// notifyRelationshipChange pushes the update to the other side when that
// user has a live connection. The notified user sees the actor as the
// counterpart of the changed edge.
func (h *Handlers) notifyRelationshipChange(ctx context.Context, result *usecase.UpdateResult) {
	session := h.registry.ResolveUser(result.Target.ID)
	if session == nil || session.Peer == nil {
		return
	}

	payload := relationshipAnswer{
		OpCode: OpARelationshipWasUpdated,
		Error:  domain.NoError,
		Relationship: &domain.Relationship{
			UserID:         result.Actor.ID,
			Username:       result.Actor.Username,
			Discriminator:  result.Actor.Discriminator,
			Biography:      result.Actor.Biography,
			ProfilePicture: result.Actor.ProfilePicture,
			State:          result.RequestedState,
		},
	}
	if err := session.Peer.SendPayload(ctx, payload); err != nil {
		h.logger.Warn("relationship change notification failed",
			zap.Int64("target_id", result.Target.ID), zap.Error(err))
	}
}

func (h *Handlers) handleChatMessage(ctx context.Context, conn *Conn, raw json.RawMessage) error {
	var req chatMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("%w: parse chat message: %v", ErrProtocolFault, err)
	}

	senderID := conn.UserID()

	message, err := h.chats.Send(ctx, senderID, req.ReceiverID, req.Content)
	if err != nil {
		h.reportUnavailable(err)
		return conn.SendPayload(ctx, chatMessagePayload{OpCode: OpUserReceiveChatMessage, Error: errorInfoFor(err)})
	}

	delivered := false
	if session := h.registry.ResolveUser(message.ReceiverID); session != nil && session.Peer != nil {
		payload := chatMessagePayload{OpCode: OpUserReceiveChatMessage, Error: domain.NoError, Message: message}
		if err := session.Peer.SendPayload(ctx, payload); err != nil {
			h.logger.Warn("chat relay failed", zap.Int64("receiver_id", message.ReceiverID), zap.Error(err))
		} else {
			delivered = true
		}
	}

	h.chats.MarkRelayed(ctx, *message, delivered)
	h.metrics.chatRelayed(delivered)
	return nil
}

// postLoginSync pushes the freshly authenticated user's relationship
// list and chat history. Failures are logged but do not cost the
// session; the client can refresh on its next connect.
func (h *Handlers) postLoginSync(ctx context.Context, conn *Conn, userID int64) {
	if friendships, err := h.relationships.ListForUser(ctx, userID); err != nil {
		h.logger.Warn("post-login friendship sync failed", zap.Int64("user_id", userID), zap.Error(err))
		h.reportUnavailable(err)
	} else if err := conn.SendPayload(ctx, friendshipsPayload{OpCode: OpSendFriendships, Friendships: friendships}); err != nil {
		h.logger.Warn("send friendships failed", zap.Int64("user_id", userID), zap.Error(err))
	}

	if chats, err := h.chats.History(ctx, userID); err != nil {
		h.logger.Warn("post-login chat sync failed", zap.Int64("user_id", userID), zap.Error(err))
		h.reportUnavailable(err)
	} else if err := conn.SendPayload(ctx, chatsPayload{OpCode: OpSendChats, Chats: chats}); err != nil {
		h.logger.Warn("send chats failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
