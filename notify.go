package toxclient

import (
	"github.com/opd-ai/toxclient/file"
	"github.com/opd-ai/toxclient/friend"
)

// NotificationKind names a presentation update.
type NotificationKind string

const (
	NotifyStatusChange          NotificationKind = "status-change"
	NotifyFriendRequest         NotificationKind = "friend-request"
	NotifyFriendRequestResolved NotificationKind = "friend-request-resolved"
	NotifyFriendAdded           NotificationKind = "add-contact"
	NotifyFriendRemoved         NotificationKind = "remove-contact"
	NotifyFriendUpdated         NotificationKind = "friend-update"
	NotifyFriendList            NotificationKind = "friend-list"
	NotifyMessage               NotificationKind = "message"
	NotifyAvatarChanged         NotificationKind = "friend-avatar-receive"
	NotifyTransfer              NotificationKind = "file-transfer"
	NotifySelfUpdated           NotificationKind = "self-update"
)

// Notification is one fire-and-forget update for presentation clients.
type Notification struct {
	Kind    NotificationKind `json:"type"`
	Payload any              `json:"data"`
}

// Notifier receives notifications on the loop goroutine. Implementations
// must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// StatusPayload accompanies NotifyStatusChange.
type StatusPayload struct {
	ConnectionStatus string `json:"connectionStatus"`
	Status           string `json:"status"`
	Connected        bool   `json:"connected"`
}

// SelfPayload accompanies NotifySelfUpdated.
type SelfPayload struct {
	Name          string `json:"name"`
	StatusMessage string `json:"statusMessage"`
}

// RequestPayload accompanies NotifyFriendRequest.
type RequestPayload struct {
	PublicKey string `json:"publicKey"`
	Message   string `json:"message"`
}

// RequestResolvedPayload accompanies NotifyFriendRequestResolved.
type RequestResolvedPayload struct {
	PublicKey string `json:"publicKey"`
	Accepted  bool   `json:"accepted"`
}

// FriendPayload accompanies friend notifications. Order lists every friend
// id in display order after the change.
type FriendPayload struct {
	Friend friend.View `json:"friend"`
	Order  []uint32    `json:"order"`
}

// FriendListPayload accompanies NotifyFriendList.
type FriendListPayload struct {
	Friends []friend.View `json:"friends"`
}

// MessagePayload accompanies NotifyMessage.
type MessagePayload struct {
	FriendID  uint32 `json:"friendId"`
	Text      string `json:"text"`
	Action    bool   `json:"action"`
	Timestamp int64  `json:"timestamp"`
	Unread    int    `json:"unread"`
	// Title and Preview are ready for a desktop notification.
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

// AvatarPayload accompanies NotifyAvatarChanged.
type AvatarPayload struct {
	FriendID uint32 `json:"id"`
	Path     string `json:"path"`
}

// TransferPayload accompanies NotifyTransfer.
type TransferPayload = file.Info
