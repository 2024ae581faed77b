package toxclient

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/friend"
	"github.com/opd-ai/toxclient/limits"
	"github.com/opd-ai/toxclient/messaging"
)

// Snapshot is the session state a presentation client needs on connect.
type Snapshot struct {
	Profile          string            `json:"profile"`
	Name             string            `json:"name"`
	StatusMessage    string            `json:"statusMessage"`
	Status           string            `json:"status"`
	Address          string            `json:"address"`
	PublicKey        string            `json:"publicKey"`
	ConnectionStatus string            `json:"connectionStatus"`
	AvatarDir        string            `json:"avatarDir"`
	Friends          []friend.View     `json:"friends"`
	Requests         []RequestPayload  `json:"requests"`
	Transfers        []TransferPayload `json:"transfers"`
}

// Snapshot returns the current session state.
func (c *Client) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, func() error {
		snap = Snapshot{
			Profile:          c.profile,
			Name:             c.eng.SelfName(),
			StatusMessage:    c.eng.SelfStatusMessage(),
			Status:           c.eng.SelfStatus().String(),
			Address:          c.eng.SelfAddress(),
			PublicKey:        c.selfKey.Upper(),
			ConnectionStatus: c.connection.String(),
			AvatarDir:        c.avatarDir(),
			Friends:          c.friendList().Friends,
			Transfers:        c.transfers.List(),
		}
		for _, r := range c.requests.GetPendingRequests() {
			snap.Requests = append(snap.Requests, RequestPayload{PublicKey: r.PublicKey.Upper(), Message: r.Message})
		}
		return nil
	})
	return snap, err
}

// SendMessage sends text to friendID and records it as written by self.
func (c *Client) SendMessage(ctx context.Context, friendID uint32, text string) error {
	if err := limits.ValidatePlaintextMessage([]byte(text)); err != nil {
		return err
	}
	return c.do(ctx, func() error {
		f, ok := c.friends.Get(friendID)
		if !ok {
			return fmt.Errorf("%w: %d", friend.ErrFriendNotFound, friendID)
		}
		if _, err := c.eng.SendMessage(friendID, engine.MessageTypeNormal, text); err != nil {
			return fmt.Errorf("send message to %d: %w", friendID, err)
		}

		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if _, err := c.store.AppendMessage(storeCtx, f.PublicKey.Hex(), text, c.selfKey.Hex(), time.Now()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "SendMessage",
				"friend_id": friendID,
				"error":     err.Error(),
			}).Error("Message sent but not stored")
			return fmt.Errorf("store message: %w", err)
		}
		return nil
	})
}

// SetName changes the self name and saves the profile.
func (c *Client) SetName(ctx context.Context, name string) error {
	if err := limits.ValidateName(name); err != nil {
		return err
	}
	return c.do(ctx, func() error {
		if err := c.eng.SetName(name); err != nil {
			return fmt.Errorf("set name: %w", err)
		}
		return c.selfUpdated("SetName")
	})
}

// SetStatusMessage changes the self status message and saves the profile.
func (c *Client) SetStatusMessage(ctx context.Context, message string) error {
	if err := limits.ValidateStatusMessage(message); err != nil {
		return err
	}
	return c.do(ctx, func() error {
		if err := c.eng.SetStatusMessage(message); err != nil {
			return fmt.Errorf("set status message: %w", err)
		}
		return c.selfUpdated("SetStatusMessage")
	})
}

func (c *Client) selfUpdated(function string) error {
	c.notifier.Notify(Notification{
		Kind: NotifySelfUpdated,
		Payload: SelfPayload{
			Name:          c.eng.SelfName(),
			StatusMessage: c.eng.SelfStatusMessage(),
		},
	})
	if err := c.saveProfile(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"profile":  c.profile,
			"error":    err.Error(),
		}).Error("Failed to save profile")
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// SendFile offers the file at path to friendID.
func (c *Client) SendFile(ctx context.Context, friendID uint32, path string) (TransferPayload, error) {
	var info TransferPayload
	err := c.do(ctx, func() error {
		if _, ok := c.friends.Get(friendID); !ok {
			return fmt.Errorf("%w: %d", friend.ErrFriendNotFound, friendID)
		}
		t, err := c.sendData(friendID, path)
		if err != nil {
			return err
		}
		info = t.Info()
		return nil
	})
	return info, err
}

// SendFriendRequest sends a request to a full Tox address and adds the
// friend locally.
func (c *Client) SendFriendRequest(ctx context.Context, address, message string) (uint32, error) {
	var id uint32
	err := c.do(ctx, func() error {
		var err error
		id, err = c.eng.FriendAdd(address, message)
		if err != nil {
			return fmt.Errorf("friend request: %w", err)
		}
		return c.addFriendRecord(id)
	})
	return id, err
}

// AcceptFriendRequest adds the requester without sending a request back.
func (c *Client) AcceptFriendRequest(ctx context.Context, publicKeyHex string) (uint32, error) {
	pk, err := engine.ParsePublicKey(publicKeyHex)
	if err != nil {
		return 0, err
	}

	var id uint32
	err = c.do(ctx, func() error {
		var err error
		id, err = c.eng.FriendAddNoRequest(pk)
		if err != nil {
			return fmt.Errorf("accept friend request: %w", err)
		}
		if err := c.addFriendRecord(id); err != nil {
			return err
		}
		c.resolveRequest(pk, true)
		return nil
	})
	return id, err
}

// DeclineFriendRequest forgets a pending request.
func (c *Client) DeclineFriendRequest(ctx context.Context, publicKeyHex string) error {
	pk, err := engine.ParsePublicKey(publicKeyHex)
	if err != nil {
		return err
	}
	return c.do(ctx, func() error {
		c.resolveRequest(pk, false)
		return nil
	})
}

func (c *Client) resolveRequest(pk engine.PublicKey, accepted bool) {
	if _, ok := c.requests.Take(pk); !ok {
		return
	}
	c.notifier.Notify(Notification{
		Kind:    NotifyFriendRequestResolved,
		Payload: RequestResolvedPayload{PublicKey: pk.Upper(), Accepted: accepted},
	})
}

func (c *Client) addFriendRecord(id uint32) error {
	pk, err := c.eng.FriendPublicKey(id)
	if err != nil {
		return fmt.Errorf("friend %d public key: %w", id, err)
	}
	name, _ := c.eng.FriendName(id)
	statusMessage, _ := c.eng.FriendStatusMessage(id)
	c.friends.Add(friend.Friend{
		ID:            id,
		PublicKey:     pk,
		Name:          name,
		StatusMessage: statusMessage,
	})
	return nil
}

// RemoveFriend deletes friendID and cancels its transfers.
func (c *Client) RemoveFriend(ctx context.Context, friendID uint32) error {
	return c.do(ctx, func() error {
		if err := c.eng.FriendDelete(friendID); err != nil {
			return fmt.Errorf("remove friend %d: %w", friendID, err)
		}
		for _, t := range c.transfers.CancelFriend(friendID) {
			c.notifyTransfer(t)
		}
		c.friends.Remove(friendID)
		return nil
	})
}

// LoadMessages returns up to limit of the newest messages with friendID,
// oldest first. A limit of zero or less means limits.DefaultMessageHistory.
func (c *Client) LoadMessages(ctx context.Context, friendID uint32, limit int) ([]messaging.View, error) {
	if limit <= 0 {
		limit = limits.DefaultMessageHistory
	}

	var views []messaging.View
	err := c.do(ctx, func() error {
		f, ok := c.friends.Get(friendID)
		if !ok {
			return fmt.Errorf("%w: %d", friend.ErrFriendNotFound, friendID)
		}
		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		msgs, err := c.store.QueryRecentMessages(storeCtx, f.PublicKey.Hex(), limit)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		self := c.selfKey.Hex()
		views = make([]messaging.View, len(msgs))
		for i, m := range msgs {
			views[i] = m.View(friendID, self)
		}
		return nil
	})
	return views, err
}

// SelectFriend marks friendID's conversation as open and clears its unread
// counter. Messages arriving for an open conversation are not counted.
func (c *Client) SelectFriend(ctx context.Context, friendID uint32) error {
	return c.do(ctx, func() error {
		if err := c.friends.ResetUnread(friendID); err != nil {
			return err
		}
		c.openConversation = friendID
		c.conversationOpen = true
		return nil
	})
}

// CancelTransfer stops a transfer locally and tells the peer.
func (c *Client) CancelTransfer(ctx context.Context, friendID, fileID uint32) error {
	return c.do(ctx, func() error {
		t, err := c.transfers.Cancel(friendID, fileID)
		if t == nil {
			return err
		}
		c.sendControl(friendID, fileID, engine.FileControlCancel)
		c.notifyTransfer(t)
		return err
	})
}
