package ws

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
	"github.com/arklim/social-platform-messenger/internal/infra/config"
	"github.com/arklim/social-platform-messenger/internal/infra/security"
	"github.com/arklim/social-platform-messenger/internal/repository"
	"github.com/arklim/social-platform-messenger/internal/usecase"
)

const testPassword = "Sup3r!SecurePass#7890"

// fakeSocket feeds frames to the connection loop and captures whatever
// it writes back.
type fakeSocket struct {
	in  chan []byte
	out chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	closeFrame []byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 8),
		out:    make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) NextReader() (int, io.Reader, error) {
	select {
	case frame := <-s.in:
		return 2, bytes.NewReader(frame), nil
	case <-s.closed:
		return 0, nil, net.ErrClosed
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}
	copied := append([]byte(nil), data...)
	select {
	case s.out <- copied:
		return nil
	default:
		return net.ErrClosed
	}
}

func (s *fakeSocket) WriteControl(_ int, data []byte, _ time.Time) error {
	s.mu.Lock()
	s.closeFrame = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) SetReadLimit(int64) {}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection did not close")
	}
}

func (s *fakeSocket) recv(t *testing.T) []byte {
	t.Helper()
	select {
	case frame := <-s.out:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

// Stub persistence for the end-to-end connection tests.

type wsAccountStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*domain.Account
}

func newWSAccountStore() *wsAccountStore {
	return &wsAccountStore{accounts: make(map[int64]*domain.Account)}
}

func (s *wsAccountStore) Create(_ context.Context, account domain.Account) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	account.ID = s.nextID
	s.accounts[account.ID] = &account
	return account.ID, nil
}

func (s *wsAccountStore) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		copied := *account
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (s *wsAccountStore) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *wsAccountStore) GetByHandle(_ context.Context, username, discriminator string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Username == username && account.Discriminator == discriminator {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *wsAccountStore) UpdateStatus(_ context.Context, id int64, status domain.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.Status = status
	return nil
}

func (s *wsAccountStore) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		account.LastLogin = &at
	}
	return nil
}

func (s *wsAccountStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

func (s *wsAccountStore) status(id int64) domain.AccountStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		return account.Status
	}
	return ""
}

type wsRelationshipStore struct{}

func (wsRelationshipStore) GetBlockedEdge(context.Context, int64, int64) (*domain.RelationshipEdge, error) {
	return nil, repository.ErrNotFound
}
func (wsRelationshipStore) UpsertPending(context.Context, int64, int64) error { return nil }
func (wsRelationshipStore) SetStateBetween(context.Context, int64, int64, domain.RelationshipState) error {
	return repository.ErrNotFound
}
func (wsRelationshipStore) ReplaceWithBlock(context.Context, int64, int64) error { return nil }
func (wsRelationshipStore) DeleteBetween(context.Context, int64, int64) error    { return nil }
func (wsRelationshipStore) ListForUser(context.Context, int64) ([]domain.RelationshipEdge, error) {
	return nil, nil
}

type wsChatStore struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func (s *wsChatStore) AddMessage(_ context.Context, message domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *wsChatStore) ListChats(context.Context, int64, int) ([]domain.Chat, error) {
	return nil, nil
}

func (s *wsChatStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type wsTokenStore struct {
	mu     sync.Mutex
	byHash map[string]domain.AutoLoginToken
}

func (s *wsTokenStore) CreateAutoLoginToken(_ context.Context, token domain.AutoLoginToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byHash == nil {
		s.byHash = make(map[string]domain.AutoLoginToken)
	}
	s.byHash[token.TokenHash] = token
	return nil
}

func (s *wsTokenStore) GetAutoLoginTokenByHash(_ context.Context, hash string) (*domain.AutoLoginToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.byHash[hash]; ok {
		return &token, nil
	}
	return nil, repository.ErrNotFound
}

func (s *wsTokenStore) RevokeAutoLoginTokens(_ context.Context, accountID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hashes []string
	for hash, token := range s.byHash {
		if token.AccountID == accountID {
			hashes = append(hashes, hash)
			delete(s.byHash, hash)
		}
	}
	return hashes, nil
}

type wsTokenCache struct {
	mu      sync.Mutex
	entries map[string]int64
}

func (c *wsTokenCache) GetAccountID(_ context.Context, hash string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[hash]
	return id, ok, nil
}

func (c *wsTokenCache) PutAccountID(_ context.Context, hash string, accountID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]int64)
	}
	c.entries[hash] = accountID
	return nil
}

func (c *wsTokenCache) Invalidate(_ context.Context, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
	return nil
}

type wsNotifier struct {
	mu   sync.Mutex
	code int64
}

func (n *wsNotifier) SendVerificationEmail(_ context.Context, _ domain.Account, code int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code = code
	return nil
}

func (n *wsNotifier) lastCode() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code
}

// testGateway bundles one served connection with a protocol-speaking
// client side.
type testGateway struct {
	sock     *fakeSocket
	codec    *Codec
	keypair  *security.Keypair
	registry *Registry
	accounts *wsAccountStore
	chats    *wsChatStore
	notifier *wsNotifier
	cipher   *security.SessionCipher
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	keypair, err := security.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	codec, err := NewCodec(keypair)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	cfg := &config.AppConfig{
		RateLimit: config.RateLimitSettings{
			WindowDuration:           time.Minute,
			LoginMaxAttempts:         100,
			CreateAccountMaxAttempts: 100,
		},
		Verification: config.VerificationSettings{MaxAttempts: 3, CodeTTL: time.Minute},
	}

	logger := zaptest.NewLogger(t)
	registry := NewRegistry()

	store := newWSAccountStore()
	chatStore := &wsChatStore{}
	notifier := &wsNotifier{}

	accountSvc := usecase.NewAccountService(cfg, store, &wsTokenStore{}, &wsTokenCache{}, nil, nil, nil, logger)
	verifySvc := usecase.NewVerificationService(cfg, store, notifier, nil, logger)
	relationshipSvc := usecase.NewRelationshipService(store, wsRelationshipStore{}, nil, logger)
	chatSvc := usecase.NewChatService(store, wsRelationshipStore{}, chatStore, nil, logger)

	handlers := NewHandlers(accountSvc, verifySvc, relationshipSvc, chatSvc, registry, logger)
	router := NewRouter(handlers)

	sock := newFakeSocket()
	conn := NewConn("test-conn", sock, codec, keypair, registry, router, config.WSSettings{
		ReadLimit:    1 << 20,
		WriteTimeout: time.Second,
		CloseTimeout: time.Second,
	}, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		conn.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		sock.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("connection loop did not exit")
		}
	})

	return &testGateway{
		sock:     sock,
		codec:    codec,
		keypair:  keypair,
		registry: registry,
		accounts: store,
		chats:    chatStore,
		notifier: notifier,
	}
}

// recvPayload reads and decodes the next server frame into dst,
// returning its opcode.
func (g *testGateway) recvPayload(t *testing.T, dst any) OpCode {
	t.Helper()

	frame := g.sock.recv(t)
	data, err := g.codec.Decode(g.cipher, frame)
	if err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	op, err := g.codec.Opcode(data)
	if err != nil {
		t.Fatalf("server frame has no opcode: %v", err)
	}
	if dst != nil {
		if err := json.Unmarshal(data, dst); err != nil {
			t.Fatalf("unmarshal server frame: %v", err)
		}
	}
	return op
}

// handshake consumes the public-key frame and completes the key
// exchange the way a client would.
func (g *testGateway) handshake(t *testing.T) {
	t.Helper()

	var pubKey publicKeyPayload
	if op := g.recvPayload(t, &pubKey); op != OpSendRSA {
		t.Fatalf("expected SendRSA first, got %s", op)
	}
	if pubKey.Modulus == "" || pubKey.Exponent == "" {
		t.Fatal("public key frame is missing parameters")
	}

	key := make([]byte, 32)
	iv := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatal(err)
	}

	cipher, err := security.NewSessionCipher(key, iv)
	if err != nil {
		t.Fatalf("client cipher: %v", err)
	}

	keyExchange, err := json.Marshal(map[string]any{
		"opCode": OpReceiveAes,
		"key":    base64.StdEncoding.EncodeToString(key),
		"iv":     base64.StdEncoding.EncodeToString(iv),
	})
	if err != nil {
		t.Fatal(err)
	}
	encrypted, err := g.keypair.Encrypt(keyExchange)
	if err != nil {
		t.Fatalf("rsa encrypt key exchange: %v", err)
	}
	g.sock.in <- encrypted
	g.cipher = cipher

	if op := g.recvPayload(t, nil); op != OpReadyToReceive {
		t.Fatalf("expected ReadyToReceive, got %s", op)
	}
}

// send encodes a request the way an established client would.
func (g *testGateway) send(t *testing.T, payload any) {
	t.Helper()
	frame, err := g.codec.Encode(g.cipher, payload)
	if err != nil {
		t.Fatalf("encode client frame: %v", err)
	}
	g.sock.in <- frame
}

func TestConnCreateAccountAndVerifyScenario(t *testing.T) {
	g := newTestGateway(t)
	g.handshake(t)

	g.send(t, map[string]any{
		"opCode":        OpRequestToCreateAccount,
		"username":      "alice",
		"discriminator": "0001",
		"email":         "alice@example.com",
		"password":      testPassword,
		"biography":     "hello",
	})

	var created accountAnswer
	if op := g.recvPayload(t, &created); op != OpAnswerToCreateAccount {
		t.Fatalf("expected AnswerToCreateAccount, got %s", op)
	}
	if !created.Error.OK() {
		t.Fatalf("create account failed on the wire: %+v", created.Error)
	}
	if created.User == nil || created.User.ID == 0 {
		t.Fatal("answer is missing the account")
	}
	if created.Token == "" {
		t.Fatal("answer is missing the auto-login token")
	}
	accountID := created.User.ID

	code := g.notifier.lastCode()
	if code == 0 {
		t.Fatal("no verification code was mailed")
	}

	// A wrong code burns an attempt but keeps the challenge alive.
	g.send(t, map[string]any{"opCode": OpRequestToVerify, "verificationCode": code + 1})
	var verify verifyAnswer
	if op := g.recvPayload(t, &verify); op != OpAnswerToVerify || verify.Success {
		t.Fatalf("expected failed verify answer, got op %s success %v", op, verify.Success)
	}
	if g.registry.ResolveUser(accountID) != nil {
		t.Fatal("user bound before verification succeeded")
	}

	g.send(t, map[string]any{"opCode": OpRequestToVerify, "verificationCode": code})
	if op := g.recvPayload(t, &verify); op != OpAnswerToVerify || !verify.Success {
		t.Fatalf("expected successful verify answer, got op %s success %v", op, verify.Success)
	}

	// Verification activates the account, binds the user, and pushes the
	// post-login sync frames.
	if op := g.recvPayload(t, nil); op != OpSendFriendships {
		t.Fatalf("expected SendFriendships, got %s", op)
	}
	if op := g.recvPayload(t, nil); op != OpSendChats {
		t.Fatalf("expected SendChats, got %s", op)
	}
	if g.accounts.status(accountID) != domain.AccountStatusActive {
		t.Fatal("account was not activated")
	}
	if g.registry.ResolveUser(accountID) == nil {
		t.Fatal("user not bound after verification")
	}
}

func TestConnPreHandshakeBusinessOpcodeCloses(t *testing.T) {
	g := newTestGateway(t)

	if op := g.recvPayload(t, nil); op != OpSendRSA {
		t.Fatalf("expected SendRSA first, got %s", op)
	}

	// A business frame before the key exchange must close the connection
	// without touching business state.
	g.sock.in <- []byte(`{"opCode":16,"receiverId":2,"content":"hi"}`)

	g.sock.waitClosed(t)
	if g.chats.count() != 0 {
		t.Fatal("pre-handshake frame reached the chat store")
	}
}

func TestConnUnknownOpcodeCloses(t *testing.T) {
	g := newTestGateway(t)
	g.handshake(t)

	g.send(t, map[string]any{"opCode": 200})
	g.sock.waitClosed(t)
}

func TestConnAuthGateKeepsConnectionOpen(t *testing.T) {
	g := newTestGateway(t)
	g.handshake(t)

	// Authenticated-only opcodes before login answer with a structured
	// error instead of closing.
	g.send(t, map[string]any{"opCode": OpUserSendChatMessage, "receiverId": 2, "content": "hi"})

	var rejection chatMessagePayload
	if op := g.recvPayload(t, &rejection); op != OpUserReceiveChatMessage {
		t.Fatalf("expected UserReceiveChatMessage rejection, got %s", op)
	}
	if rejection.Error.Code != domain.ErrCodeWrongLoginData {
		t.Fatalf("expected wrongLoginData, got %s", rejection.Error.Code)
	}
	if g.sock.isClosed() {
		t.Fatal("auth rejection closed the connection")
	}
	if g.chats.count() != 0 {
		t.Fatal("unauthenticated frame reached the chat store")
	}

	// The connection still serves the login flow afterwards.
	g.send(t, map[string]any{"opCode": OpRequestLogin, "email": "", "password": ""})
	var login accountAnswer
	if op := g.recvPayload(t, &login); op != OpAnswerToLogin {
		t.Fatalf("expected AnswerToLogin, got %s", op)
	}
	if login.Error.Code != domain.ErrCodePayloadDataMissing {
		t.Fatalf("expected payloadDataMissing, got %s", login.Error.Code)
	}
}

func TestConnAesFramePreHandshakeCloses(t *testing.T) {
	g := newTestGateway(t)

	if op := g.recvPayload(t, nil); op != OpSendRSA {
		t.Fatalf("expected SendRSA first, got %s", op)
	}

	cipher := newTestCipher(t)
	frame, err := g.codec.Encode(cipher, map[string]any{"opCode": OpRequestLogin})
	if err != nil {
		t.Fatal(err)
	}
	g.sock.in <- frame
	g.sock.waitClosed(t)
}
