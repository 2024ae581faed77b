package messaging

import (
	"context"
	"errors"
	"time"
)

// SelfSenderID marks a message written by the local user in a View.
const SelfSenderID int64 = -1

// ErrStoreClosed is returned by a store after Close.
var ErrStoreClosed = errors.New("message store closed")

// Message is one stored chat message.
type Message struct {
	ID int64
	// ContactKey is the hex public key of the conversation's friend.
	ContactKey string
	// SenderKey is the hex public key of the author; equal to ContactKey
	// for received messages and to the local key for sent ones.
	SenderKey string
	Text      string
	Timestamp time.Time
	Pending   bool
}

// View is a message as shown in a conversation.
type View struct {
	ID int64 `json:"id"`
	// FriendID is the sender's friend id, or SelfSenderID.
	FriendID  int64  `json:"friendId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Pending   bool   `json:"pending"`
}

// View converts m for a conversation with friendID. selfKey is the local
// user's hex public key.
func (m Message) View(friendID uint32, selfKey string) View {
	sender := int64(friendID)
	if m.SenderKey == selfKey {
		sender = SelfSenderID
	}
	return View{
		ID:        m.ID,
		FriendID:  sender,
		Text:      m.Text,
		Timestamp: m.Timestamp.UnixMilli(),
		Pending:   m.Pending,
	}
}

// Store is an append-only message log.
type Store interface {
	// AppendMessage records a message and returns its id.
	AppendMessage(ctx context.Context, contactKey, text, senderKey string, ts time.Time) (int64, error)
	// QueryRecentMessages returns up to limit of the newest messages with
	// contactKey, oldest first.
	QueryRecentMessages(ctx context.Context, contactKey string, limit int) ([]Message, error)
	Close() error
}
