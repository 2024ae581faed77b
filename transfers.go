package toxclient

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/file"
	"github.com/opd-ai/toxclient/limits"
)

// handleFileRecv applies the receive policy to an offer and, when it
// passes, opens the destination and accepts the transfer.
func (c *Client) handleFileRecv(e engine.FileRecv) {
	log := logrus.WithFields(logrus.Fields{
		"function":  "handleFileRecv",
		"friend_id": e.FriendID,
		"file_id":   e.FileID,
		"file_size": e.Size,
		"avatar":    e.FileKind == engine.FileKindAvatar,
	})

	f, ok := c.friends.Get(e.FriendID)
	if !ok {
		log.Warn("File offer from unknown friend, rejecting")
		c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
		return
	}

	isAvatar := e.FileKind == engine.FileKindAvatar
	policy := c.cfg.FileTransfers
	if (policy.RejectFiles && !isAvatar) || (policy.RejectAvatars && isAvatar) {
		log.Info("Rejecting file by policy")
		c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
		return
	}
	if isAvatar && !limits.AvatarAllowed(e.Size, policy.MaxAvatarSize) {
		log.Warn("Rejecting oversized avatar")
		c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
		return
	}

	dir := c.cfg.DownloadDir
	name := e.Filename
	if isAvatar {
		dir = c.avatarDir()
		name = file.AvatarFileName(f.PublicKey)
	}
	name, err := file.SanitizeFileName(name)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Rejecting file with unusable name")
		c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
		return
	}

	path := file.AvatarPath(dir, f.PublicKey)
	if !isAvatar {
		path, err = file.UniquePath(dir, name)
		if err != nil {
			log.WithField("error", err.Error()).Error("Cannot choose download path")
			c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
			return
		}
	}

	t := file.NewIncoming(e.FriendID, e.FileID, path, name, e.Size, isAvatar)
	if err := t.Open(); err != nil {
		c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
		return
	}
	if err := c.register(t); err != nil {
		t.Fail(err)
		c.sendControl(e.FriendID, e.FileID, engine.FileControlCancel)
		return
	}
	if err := c.eng.FileControl(e.FriendID, e.FileID, engine.FileControlResume); err != nil {
		c.failTransfer(e.FriendID, e.FileID, fmt.Errorf("accept: %w", err))
		return
	}

	log.WithField("path", path).Info("Accepted incoming file")
	c.notifyTransfer(t)
}

// register adds t to the table. The engine reuses file ids once a transfer
// ends, so an entry still holding the key belongs to a transfer whose end
// was never observed; it is cancelled to make room.
func (c *Client) register(t *file.Transfer) error {
	err := c.transfers.Add(t)
	if !errors.Is(err, file.ErrTransferExists) {
		return err
	}

	old, cancelErr := c.transfers.Cancel(t.FriendID, t.FileID)
	fields := logrus.Fields{
		"function":  "register",
		"friend_id": t.FriendID,
		"file_id":   t.FileID,
	}
	if old != nil {
		fields["stale_transfer_id"] = old.ID
	}
	if cancelErr != nil {
		fields["error"] = cancelErr.Error()
	}
	logrus.WithFields(fields).Warn("Replacing stale transfer with reused file id")
	return c.transfers.Add(t)
}

// activeTransfer returns the transfer for (friendID, fileID) if it runs in
// direction. Anything else is a stale event and is ignored.
func (c *Client) activeTransfer(function string, friendID, fileID uint32, direction file.TransferDirection) (*file.Transfer, bool) {
	t, err := c.transfers.GetTransfer(friendID, fileID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  function,
			"friend_id": friendID,
			"file_id":   fileID,
		}).Debug("Event for unknown transfer")
		return nil, false
	}
	if t.Direction != direction {
		logrus.WithFields(logrus.Fields{
			"function":  function,
			"friend_id": friendID,
			"file_id":   fileID,
			"direction": t.Direction,
		}).Debug("Event for transfer in the other direction")
		return nil, false
	}
	return t, true
}

func (c *Client) handleFileRecvChunk(e engine.FileRecvChunk) {
	t, ok := c.activeTransfer("handleFileRecvChunk", e.FriendID, e.FileID, file.TransferDirectionIncoming)
	if !ok {
		return
	}

	if len(e.Data) == 0 {
		c.completeTransfer(e.FriendID, e.FileID)
		return
	}

	if err := t.WriteAt(e.Position, e.Data); err != nil {
		c.failTransfer(e.FriendID, e.FileID, fmt.Errorf("write at %d: %w", e.Position, err))
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "handleFileRecvChunk",
		"friend_id": e.FriendID,
		"file_id":   e.FileID,
		"position":  e.Position,
		"length":    len(e.Data),
	}).Debug("Chunk written")
}

func (c *Client) handleFileChunkRequest(e engine.FileChunkRequest) {
	t, ok := c.activeTransfer("handleFileChunkRequest", e.FriendID, e.FileID, file.TransferDirectionOutgoing)
	if !ok {
		return
	}

	if e.Length == 0 {
		c.completeTransfer(e.FriendID, e.FileID)
		return
	}

	data, err := t.ReadAt(e.Position, e.Length)
	if err != nil {
		c.failTransfer(e.FriendID, e.FileID, err)
		return
	}
	if err := c.eng.FileSendChunk(e.FriendID, e.FileID, e.Position, data); err != nil {
		c.failTransfer(e.FriendID, e.FileID, fmt.Errorf("send chunk at %d: %w", e.Position, err))
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "handleFileChunkRequest",
		"friend_id": e.FriendID,
		"file_id":   e.FileID,
		"position":  e.Position,
		"length":    len(data),
	}).Debug("Chunk sent")
}

func (c *Client) handleFileRecvControl(e engine.FileRecvControl) {
	log := logrus.WithFields(logrus.Fields{
		"function":  "handleFileRecvControl",
		"friend_id": e.FriendID,
		"file_id":   e.FileID,
		"control":   e.Control,
	})

	if e.Control == engine.FileControlCancel {
		t, err := c.transfers.Cancel(e.FriendID, e.FileID)
		if errors.Is(err, file.ErrTransferNotFound) {
			log.Debug("Cancel for unknown transfer ignored")
			return
		}
		if err != nil {
			log.WithField("error", err.Error()).Warn("Error closing cancelled transfer")
		}
		log.Info("Transfer cancelled by peer")
		c.notifyTransfer(t)
		return
	}

	t, err := c.transfers.GetTransfer(e.FriendID, e.FileID)
	if err != nil {
		log.Debug("Control for unknown transfer ignored")
		return
	}
	switch e.Control {
	case engine.FileControlPause:
		err = t.Pause()
	case engine.FileControlResume:
		if t.GetState() == file.TransferStatePaused {
			err = t.Resume()
		}
	}
	if err != nil {
		log.WithField("error", err.Error()).Debug("Control did not apply")
		return
	}
	c.notifyTransfer(t)
}

func (c *Client) completeTransfer(friendID, fileID uint32) {
	t, err := c.transfers.Complete(friendID, fileID)
	if t == nil {
		return
	}
	log := logrus.WithFields(logrus.Fields{
		"function":    "completeTransfer",
		"transfer_id": t.ID,
		"friend_id":   friendID,
		"file_id":     fileID,
		"bytes":       t.Transferred,
	})
	if err != nil {
		log.WithField("error", err.Error()).Warn("Error closing completed transfer")
	}
	log.Info("File transfer completed")

	c.notifyTransfer(t)
	if t.IsAvatar && t.Direction == file.TransferDirectionIncoming {
		c.notifier.Notify(Notification{
			Kind:    NotifyAvatarChanged,
			Payload: AvatarPayload{FriendID: friendID, Path: t.Path},
		})
	}
}

// failTransfer abandons a transfer after a local error and tells the peer.
func (c *Client) failTransfer(friendID, fileID uint32, cause error) {
	t, err := c.transfers.Fail(friendID, fileID, cause)
	if t == nil {
		return
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "failTransfer",
			"friend_id": friendID,
			"file_id":   fileID,
			"error":     err.Error(),
		}).Warn("Error closing failed transfer")
	}
	c.sendControl(friendID, fileID, engine.FileControlCancel)
	c.notifyTransfer(t)
}

// sweepStalled cancels running transfers that moved no data within the
// configured stall timeout.
func (c *Client) sweepStalled() {
	if c.cfg.FileTransfers.StallTimeout <= 0 {
		return
	}
	timeout := time.Duration(c.cfg.FileTransfers.StallTimeout) * time.Second
	for _, t := range c.transfers.Stalled(timeout) {
		logrus.WithFields(logrus.Fields{
			"function":    "sweepStalled",
			"transfer_id": t.ID,
			"friend_id":   t.FriendID,
			"file_id":     t.FileID,
			"idle":        t.IdleFor(),
		}).Warn("Cancelling stalled transfer")
		c.failTransfer(t.FriendID, t.FileID, fmt.Errorf("%w: idle for %s", file.ErrStalled, t.IdleFor().Round(time.Second)))
	}
}

func (c *Client) sendControl(friendID, fileID uint32, control engine.FileControl) {
	if err := c.eng.FileControl(friendID, fileID, control); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "sendControl",
			"friend_id": friendID,
			"file_id":   fileID,
			"control":   control,
			"error":     err.Error(),
		}).Warn("Failed to send file control")
	}
}

func (c *Client) notifyTransfer(t *file.Transfer) {
	c.notifier.Notify(Notification{Kind: NotifyTransfer, Payload: t.Info()})
}

// sendAvatar offers the local avatar to friendID if one exists.
func (c *Client) sendAvatar(friendID uint32) {
	path := file.AvatarPath(c.avatarDir(), c.selfKey)
	log := logrus.WithFields(logrus.Fields{
		"function":  "sendAvatar",
		"friend_id": friendID,
		"path":      path,
	})

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("No local avatar to send")
		return
	}
	if err != nil {
		log.WithField("error", err.Error()).Warn("Cannot stat avatar")
		return
	}
	if !limits.AvatarAllowed(uint64(info.Size()), c.cfg.FileTransfers.MaxAvatarSize) {
		log.WithField("file_size", info.Size()).Warn("Local avatar exceeds the size limit, not sending")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Cannot read avatar")
		return
	}

	if _, err := c.startSend(friendID, path, file.AvatarFileName(c.selfKey), uint64(len(data)), engine.FileKindAvatar, file.AvatarFileID(data)); err != nil {
		log.WithField("error", err.Error()).Warn("Avatar offer failed")
		return
	}
	log.Info("Avatar offered")
}

// sendData offers a regular file under a random file id.
func (c *Client) sendData(friendID uint32, path string) (*file.Transfer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	name, err := file.SanitizeFileName(info.Name())
	if err != nil {
		return nil, err
	}

	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return nil, fmt.Errorf("generate file id: %w", err)
	}
	return c.startSend(friendID, path, name, uint64(info.Size()), engine.FileKindData, id)
}

// startSend offers a file and registers the send-direction transfer. The
// peer pulls data with chunk requests from then on.
func (c *Client) startSend(friendID uint32, path, name string, size uint64, kind engine.FileKind, id [32]byte) (*file.Transfer, error) {
	fileID, err := c.eng.FileSend(friendID, kind, size, id, name)
	if err != nil {
		return nil, fmt.Errorf("offer %s: %w", name, err)
	}

	t := file.NewOutgoing(friendID, fileID, path, name, size, kind == engine.FileKindAvatar)
	if err := t.Open(); err != nil {
		c.sendControl(friendID, fileID, engine.FileControlCancel)
		return nil, err
	}
	if err := c.register(t); err != nil {
		t.Fail(err)
		c.sendControl(friendID, fileID, engine.FileControlCancel)
		return nil, err
	}

	c.notifyTransfer(t)
	return t, nil
}
