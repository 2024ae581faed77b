package toxclient

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/limits"
)

func (c *Client) handleSelfConnection(e engine.SelfConnectionStatus) {
	prev := c.connection
	c.connection = e.Status

	switch {
	case !prev.Online() && e.Status.Online():
		logrus.WithFields(logrus.Fields{
			"function":   "handleSelfConnection",
			"connection": e.Status,
		}).Info("Connected to DHT")
	case prev.Online() && !e.Status.Online():
		logrus.WithFields(logrus.Fields{
			"function":   "handleSelfConnection",
			"connection": e.Status,
		}).Info("Disconnected")
	}

	c.notifier.Notify(Notification{Kind: NotifyStatusChange, Payload: c.statusPayload()})
}

func (c *Client) statusPayload() StatusPayload {
	return StatusPayload{
		ConnectionStatus: c.connection.String(),
		Status:           c.eng.SelfStatus().String(),
		Connected:        c.connection.Online(),
	}
}

func (c *Client) handleFriendRequest(e engine.FriendRequest) {
	if f, ok := c.friends.FindByPublicKey(e.PublicKey); ok {
		logrus.WithFields(logrus.Fields{
			"function":   "handleFriendRequest",
			"friend_id":  f.ID,
			"public_key": e.PublicKey.Short(),
		}).Debug("Friend request from existing friend ignored")
		return
	}

	req, isNew := c.requests.AddRequest(e.PublicKey, e.Message)
	if !isNew {
		logrus.WithFields(logrus.Fields{
			"function":   "handleFriendRequest",
			"public_key": e.PublicKey.Short(),
		}).Debug("Duplicate friend request")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":   "handleFriendRequest",
		"public_key": e.PublicKey.Short(),
	}).Info("Friend request received")

	c.notifier.Notify(Notification{
		Kind:    NotifyFriendRequest,
		Payload: RequestPayload{PublicKey: req.PublicKey.Upper(), Message: req.Message},
	})
}

func (c *Client) handleFriendMessage(e engine.FriendMessage) {
	f, ok := c.friends.Get(e.FriendID)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFriendMessage",
			"friend_id": e.FriendID,
		}).Warn("Message from unknown friend")
		return
	}

	now := time.Now()
	key := f.PublicKey.Hex()
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if _, err := c.store.AppendMessage(ctx, key, e.Message, key, now); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "handleFriendMessage",
			"friend_id": e.FriendID,
			"error":     err.Error(),
		}).Error("Failed to store message")
	}

	unread := f.Unread
	if !c.isConversationOpen(e.FriendID) {
		if n, err := c.friends.IncrementUnread(e.FriendID); err == nil {
			unread = n
		}
	}

	c.notifier.Notify(Notification{
		Kind: NotifyMessage,
		Payload: MessagePayload{
			FriendID:  e.FriendID,
			Text:      e.Message,
			Action:    e.Type == engine.MessageTypeAction,
			Timestamp: now.UnixMilli(),
			Unread:    unread,
			Title:     f.DisplayName(),
			Preview:   limits.Truncate(e.Message, limits.MaxNotificationLength),
		},
	})
}

func (c *Client) isConversationOpen(friendID uint32) bool {
	return c.conversationOpen && c.openConversation == friendID
}

// onFriendChange forwards directory mutations to the notifier and starts
// the avatar exchange when a friend comes online.
func (c *Client) onFriendChange(ch friend.Change) {
	switch ch.Kind {
	case friend.ChangeReset:
		c.notifier.Notify(Notification{Kind: NotifyFriendList, Payload: c.friendList()})
	case friend.ChangeAdded:
		c.notifier.Notify(Notification{
			Kind:    NotifyFriendAdded,
			Payload: FriendPayload{Friend: ch.After.View(), Order: c.friendOrder()},
		})
	case friend.ChangeRemoved:
		if c.isConversationOpen(ch.FriendID) {
			c.conversationOpen = false
		}
		c.notifier.Notify(Notification{
			Kind:    NotifyFriendRemoved,
			Payload: FriendPayload{Friend: ch.Before.View(), Order: c.friendOrder()},
		})
	case friend.ChangePatched:
		c.notifier.Notify(Notification{
			Kind:    NotifyFriendUpdated,
			Payload: FriendPayload{Friend: ch.After.View(), Order: c.friendOrder()},
		})
	}

	if ch.CameOnline() {
		c.sendAvatar(ch.FriendID)
	}
}

func (c *Client) friendList() FriendListPayload {
	sorted := c.friends.SortedView()
	views := make([]friend.View, len(sorted))
	for i, f := range sorted {
		views[i] = f.View()
	}
	return FriendListPayload{Friends: views}
}

func (c *Client) friendOrder() []uint32 {
	sorted := c.friends.SortedView()
	ids := make([]uint32, len(sorted))
	for i, f := range sorted {
		ids[i] = f.ID
	}
	return ids
}
