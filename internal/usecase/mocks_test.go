package usecase

import (
	"context"
	"time"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/core/port"
	"github.com/arklim/social-platform-messenger/internal/repository"
)

type mockAccountRepository struct {
	createID    int64
	createErr   error
	createCalls int
	created     domain.Account

	byID map[int64]*domain.Account

	updateStatusCalls  int
	updateStatusID     int64
	updateStatusStatus domain.AccountStatus
	updateStatusErr    error

	updateLastLoginCalls int
	deleteCalls          int
}

func (m *mockAccountRepository) Create(_ context.Context, account domain.Account) (int64, error) {
	m.createCalls++
	m.created = account
	if m.createErr != nil {
		return 0, m.createErr
	}
	return m.createID, nil
}

func (m *mockAccountRepository) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	if account, ok := m.byID[id]; ok {
		copied := *account
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockAccountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	for _, account := range m.byID {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockAccountRepository) GetByHandle(_ context.Context, username, discriminator string) (*domain.Account, error) {
	for _, account := range m.byID {
		if account.Username == username && account.Discriminator == discriminator {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockAccountRepository) UpdateStatus(_ context.Context, id int64, status domain.AccountStatus) error {
	m.updateStatusCalls++
	m.updateStatusID = id
	m.updateStatusStatus = status
	return m.updateStatusErr
}

func (m *mockAccountRepository) UpdateLastLogin(context.Context, int64, time.Time) error {
	m.updateLastLoginCalls++
	return nil
}

func (m *mockAccountRepository) Delete(context.Context, int64) error {
	m.deleteCalls++
	return nil
}

// mockRelationshipRepository keeps at most one edge per pair, mirroring the
// database's pair-unique index, so transition sequences behave like the
// real store.
type mockRelationshipRepository struct {
	edge *domain.RelationshipEdge

	upsertPendingCalls int
	setStateCalls      int
	replaceBlockCalls  int
	deleteCalls        int
}

func (m *mockRelationshipRepository) GetBlockedEdge(_ context.Context, senderID, receiverID int64) (*domain.RelationshipEdge, error) {
	if m.edge != nil && m.edge.State == domain.RelationshipBlocked &&
		m.edge.SenderID == senderID && m.edge.ReceiverID == receiverID {
		copied := *m.edge
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockRelationshipRepository) UpsertPending(_ context.Context, senderID, receiverID int64) error {
	m.upsertPendingCalls++
	if m.edge != nil && m.edge.State == domain.RelationshipBlocked && m.edge.SenderID != senderID {
		return nil
	}
	m.edge = &domain.RelationshipEdge{
		SenderID:   senderID,
		ReceiverID: receiverID,
		State:      domain.RelationshipPending,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (m *mockRelationshipRepository) SetStateBetween(_ context.Context, a, b int64, state domain.RelationshipState) error {
	m.setStateCalls++
	if m.edge == nil || !m.edgeBetween(a, b) {
		return repository.ErrNotFound
	}
	m.edge.State = state
	m.edge.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockRelationshipRepository) ReplaceWithBlock(_ context.Context, blockerID, blockedID int64) error {
	m.replaceBlockCalls++
	m.edge = &domain.RelationshipEdge{
		SenderID:   blockerID,
		ReceiverID: blockedID,
		State:      domain.RelationshipBlocked,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (m *mockRelationshipRepository) DeleteBetween(_ context.Context, a, b int64) error {
	m.deleteCalls++
	if m.edge != nil && m.edgeBetween(a, b) {
		m.edge = nil
	}
	return nil
}

func (m *mockRelationshipRepository) ListForUser(_ context.Context, userID int64) ([]domain.RelationshipEdge, error) {
	if m.edge == nil || (m.edge.SenderID != userID && m.edge.ReceiverID != userID) {
		return nil, nil
	}
	return []domain.RelationshipEdge{*m.edge}, nil
}

func (m *mockRelationshipRepository) edgeBetween(a, b int64) bool {
	return (m.edge.SenderID == a && m.edge.ReceiverID == b) ||
		(m.edge.SenderID == b && m.edge.ReceiverID == a)
}

type mockChatRepository struct {
	messages []domain.ChatMessage
	addErr   error

	chats    []domain.Chat
	listErr  error
	listUser int64
}

func (m *mockChatRepository) AddMessage(_ context.Context, message domain.ChatMessage) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.messages = append(m.messages, message)
	return nil
}

func (m *mockChatRepository) ListChats(_ context.Context, userID int64, _ int) ([]domain.Chat, error) {
	m.listUser = userID
	return m.chats, m.listErr
}

type mockTokenRepository struct {
	byHash map[string]*domain.AutoLoginToken

	createErr   error
	createCalls int
	created     domain.AutoLoginToken

	revokeCalls int
	revokeID    int64
}

func (m *mockTokenRepository) CreateAutoLoginToken(_ context.Context, token domain.AutoLoginToken) error {
	m.createCalls++
	m.created = token
	if m.createErr != nil {
		return m.createErr
	}
	if m.byHash == nil {
		m.byHash = make(map[string]*domain.AutoLoginToken)
	}
	stored := token
	m.byHash[token.TokenHash] = &stored
	return nil
}

func (m *mockTokenRepository) GetAutoLoginTokenByHash(_ context.Context, hash string) (*domain.AutoLoginToken, error) {
	if token, ok := m.byHash[hash]; ok {
		copied := *token
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockTokenRepository) RevokeAutoLoginTokens(_ context.Context, accountID int64) ([]string, error) {
	m.revokeCalls++
	m.revokeID = accountID
	var hashes []string
	for hash, token := range m.byHash {
		if token.AccountID == accountID {
			hashes = append(hashes, hash)
			delete(m.byHash, hash)
		}
	}
	return hashes, nil
}

type mockTokenCache struct {
	entries map[string]int64

	getCalls int
	putCalls int
}

func (m *mockTokenCache) GetAccountID(_ context.Context, hash string) (int64, bool, error) {
	m.getCalls++
	id, ok := m.entries[hash]
	return id, ok, nil
}

func (m *mockTokenCache) PutAccountID(_ context.Context, hash string, accountID int64) error {
	m.putCalls++
	if m.entries == nil {
		m.entries = make(map[string]int64)
	}
	m.entries[hash] = accountID
	return nil
}

func (m *mockTokenCache) Invalidate(_ context.Context, hash string) error {
	delete(m.entries, hash)
	return nil
}

// mockRateLimitStore keeps attempts in memory with real window arithmetic.
type mockRateLimitStore struct {
	attempts map[string][]time.Time
}

func (m *mockRateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if m.attempts == nil {
		return nil
	}
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *mockRateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	count := 0
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

func (m *mockRateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	if m.attempts == nil {
		m.attempts = make(map[string][]time.Time)
	}
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *mockRateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	var oldest time.Time
	found := false
	for _, at := range m.attempts[identifier] {
		if at.Before(reference.Add(-window)) || at.After(reference) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

type mockEventPublisher struct {
	registered   []domain.AccountRegisteredEvent
	verified     []domain.AccountVerifiedEvent
	relationship []domain.RelationshipUpdatedEvent
	relayed      []domain.ChatMessageRelayedEvent
}

func (m *mockEventPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	m.registered = append(m.registered, event)
	return nil
}

func (m *mockEventPublisher) PublishAccountVerified(_ context.Context, event domain.AccountVerifiedEvent) error {
	m.verified = append(m.verified, event)
	return nil
}

func (m *mockEventPublisher) PublishRelationshipUpdated(_ context.Context, event domain.RelationshipUpdatedEvent) error {
	m.relationship = append(m.relationship, event)
	return nil
}

func (m *mockEventPublisher) PublishChatMessageRelayed(_ context.Context, event domain.ChatMessageRelayedEvent) error {
	m.relayed = append(m.relayed, event)
	return nil
}

type mockNotifier struct {
	calls    int
	lastCode int64
	lastTo   string
	sendErr  error
}

func (m *mockNotifier) SendVerificationEmail(_ context.Context, account domain.Account, code int64) error {
	m.calls++
	m.lastCode = code
	m.lastTo = account.Email
	return m.sendErr
}

var (
	_ port.AccountRepository      = (*mockAccountRepository)(nil)
	_ port.RelationshipRepository = (*mockRelationshipRepository)(nil)
	_ port.ChatRepository         = (*mockChatRepository)(nil)
	_ port.TokenRepository        = (*mockTokenRepository)(nil)
	_ port.TokenCache             = (*mockTokenCache)(nil)
	_ port.RateLimitStore         = (*mockRateLimitStore)(nil)
	_ port.EventPublisher         = (*mockEventPublisher)(nil)
	_ port.Notifier               = (*mockNotifier)(nil)
)
