package ws

import (
	"encoding/base64"
	"time"

	"github.com/arklim/social-platform-messenger/internal/core/domain"
)

// Wire payloads. Every outbound struct carries its opcode so the codec
// can ship it as-is; inbound structs omit the opcode because the router
// already peeled it off the envelope.

type publicKeyPayload struct {
	OpCode   OpCode `json:"opCode"`
	Modulus  string `json:"modulus"`
	Exponent string `json:"exponent"`
}

// sessionKeyPayload is the client's answer to the public-key frame,
// RSA-encrypted. Key and IV are base64.
type sessionKeyPayload struct {
	Key string `json:"key"`
	IV  string `json:"iv"`
}

func (p sessionKeyPayload) material() (key, iv []byte, err error) {
	key, err = base64.StdEncoding.DecodeString(p.Key)
	if err != nil {
		return nil, nil, err
	}
	iv, err = base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return nil, nil, err
	}
	return key, iv, nil
}

type readyPayload struct {
	OpCode OpCode `json:"opCode"`
}

// accountView is the client-facing projection of an account. The
// password hash never leaves the server.
type accountView struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Discriminator    string     `json:"discriminator"`
	Email            string     `json:"email"`
	Biography        string     `json:"biography"`
	ProfilePicture   []byte     `json:"profilePicture,omitempty"`
	Birthday         *time.Time `json:"birthday,omitempty"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	Status           string     `json:"status"`
}

func viewOf(account domain.Account) *accountView {
	return &accountView{
		ID:               account.ID,
		Username:         account.Username,
		Discriminator:    account.Discriminator,
		Email:            account.Email,
		Biography:        account.Biography,
		ProfilePicture:   account.ProfilePicture,
		Birthday:         account.Birthday,
		TwoFactorEnabled: account.TwoFactorEnabled,
		Status:           string(account.Status),
	}
}

type createAccountRequest struct {
	Username      string     `json:"username"`
	Discriminator string     `json:"discriminator"`
	Email         string     `json:"email"`
	Password      string     `json:"password"`
	Biography     string     `json:"biography"`
	Birthday      *time.Time `json:"birthday,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type accountAnswer struct {
	OpCode OpCode           `json:"opCode"`
	Error  domain.ErrorInfo `json:"error"`
	User   *accountView     `json:"user,omitempty"`
	Token  string           `json:"token,omitempty"`
}

type verifyRequest struct {
	VerificationCode int64 `json:"verificationCode"`
}

type verifyAnswer struct {
	OpCode  OpCode `json:"opCode"`
	Success bool   `json:"success"`
}

type relationshipUpdateRequest struct {
	Target         domain.TargetRef         `json:"target"`
	RequestedState domain.RelationshipState `json:"requestedState"`
}

type relationshipAnswer struct {
	OpCode       OpCode               `json:"opCode"`
	Error        domain.ErrorInfo     `json:"error"`
	Relationship *domain.Relationship `json:"relationship,omitempty"`
}

type friendshipsPayload struct {
	OpCode      OpCode                `json:"opCode"`
	Friendships []domain.Relationship `json:"friendships"`
}

type chatsPayload struct {
	OpCode OpCode        `json:"opCode"`
	Chats  []domain.Chat `json:"chats"`
}

type chatMessageRequest struct {
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

type chatMessagePayload struct {
	OpCode  OpCode              `json:"opCode"`
	Error   domain.ErrorInfo    `json:"error"`
	Message *domain.ChatMessage `json:"message,omitempty"`
}
