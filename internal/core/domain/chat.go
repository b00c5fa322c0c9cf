package domain

import "time"

// ChatMessage is one relayed and persisted direct message.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sentAt"`
}

// Chat groups the persisted history between two accounts, newest last.
type Chat struct {
	PartnerID int64         `json:"partnerId"`
	Messages  []ChatMessage `json:"messages"`
}
