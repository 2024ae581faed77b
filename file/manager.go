package file

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrTransferNotFound indicates no transfer is registered under a key.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrTransferExists indicates a key is already in use.
	ErrTransferExists = errors.New("transfer already registered")

	// ErrStalled indicates a transfer that moved no data for too long.
	ErrStalled = errors.New("transfer stalled")
)

// transferKey uniquely identifies a file transfer.
type transferKey struct {
	friendID uint32
	fileID   uint32
}

// Manager is the registry of active transfers. Entries leave the registry
// through Complete, Cancel, Fail or CloseAll, each of which closes the
// transfer's file handle.
type Manager struct {
	transfers    map[transferKey]*Transfer
	timeProvider TimeProvider
	mu           sync.RWMutex
}

// NewManager creates an empty transfer registry.
func NewManager() *Manager {
	return NewManagerWithTimeProvider(defaultTimeProvider)
}

// NewManagerWithTimeProvider creates an empty registry whose transfers
// track activity with tp.
func NewManagerWithTimeProvider(tp TimeProvider) *Manager {
	if tp == nil {
		tp = defaultTimeProvider
	}
	return &Manager{
		transfers:    make(map[transferKey]*Transfer),
		timeProvider: tp,
	}
}

// Add registers t under (t.FriendID, t.FileID).
func (m *Manager) Add(t *Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := transferKey{t.FriendID, t.FileID}
	if _, exists := m.transfers[key]; exists {
		return fmt.Errorf("%w: friend %d file %d", ErrTransferExists, t.FriendID, t.FileID)
	}
	t.SetTimeProvider(m.timeProvider)
	m.transfers[key] = t

	logrus.WithFields(logrus.Fields{
		"function":    "Manager.Add",
		"transfer_id": t.ID,
		"friend_id":   t.FriendID,
		"file_id":     t.FileID,
		"direction":   t.Direction,
		"active":      len(m.transfers),
	}).Debug("Transfer registered")
	return nil
}

// GetTransfer returns the transfer registered under (friendID, fileID).
func (m *Manager) GetTransfer(friendID, fileID uint32) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transfers[transferKey{friendID, fileID}]
	if !ok {
		return nil, fmt.Errorf("%w: friend %d file %d", ErrTransferNotFound, friendID, fileID)
	}
	return t, nil
}

func (m *Manager) take(friendID, fileID uint32) (*Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := transferKey{friendID, fileID}
	t, ok := m.transfers[key]
	if !ok {
		return nil, fmt.Errorf("%w: friend %d file %d", ErrTransferNotFound, friendID, fileID)
	}
	delete(m.transfers, key)
	return t, nil
}

// Complete closes and deregisters a transfer that ended normally.
func (m *Manager) Complete(friendID, fileID uint32) (*Transfer, error) {
	t, err := m.take(friendID, fileID)
	if err != nil {
		return nil, err
	}
	return t, ignoreFinished(t.Complete())
}

// Cancel closes and deregisters a transfer regardless of its progress.
func (m *Manager) Cancel(friendID, fileID uint32) (*Transfer, error) {
	t, err := m.take(friendID, fileID)
	if err != nil {
		return nil, err
	}
	return t, ignoreFinished(t.Cancel())
}

// Fail closes and deregisters a transfer after a local error.
func (m *Manager) Fail(friendID, fileID uint32, cause error) (*Transfer, error) {
	t, err := m.take(friendID, fileID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Manager.Fail",
		"transfer_id": t.ID,
		"friend_id":   friendID,
		"file_id":     fileID,
		"error":       cause,
	}).Error("Transfer failed")

	return t, ignoreFinished(t.Fail(cause))
}

// Stalled returns the running transfers idle for longer than timeout,
// ordered by friend then file id. Paused transfers, and outgoing offers the
// peer has not started reading, are never stalled.
func (m *Manager) Stalled(timeout time.Duration) []*Transfer {
	m.mu.RLock()
	var out []*Transfer
	for _, t := range m.transfers {
		if t.GetState() == TransferStateRunning && !t.awaitingPeer() && t.IdleFor() > timeout {
			out = append(out, t)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FriendID != out[j].FriendID {
			return out[i].FriendID < out[j].FriendID
		}
		return out[i].FileID < out[j].FileID
	})
	return out
}

func ignoreFinished(err error) error {
	if errors.Is(err, ErrFinished) {
		return nil
	}
	return err
}

// ForFriend returns the friend's transfers ordered by file id.
func (m *Manager) ForFriend(friendID uint32) []*Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Transfer
	for key, t := range m.transfers {
		if key.friendID == friendID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out
}

// CancelFriend cancels every transfer with friendID and returns them.
func (m *Manager) CancelFriend(friendID uint32) []*Transfer {
	transfers := m.ForFriend(friendID)
	for _, t := range transfers {
		if _, err := m.Cancel(t.FriendID, t.FileID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Manager.CancelFriend",
				"friend_id": friendID,
				"file_id":   t.FileID,
				"error":     err.Error(),
			}).Warn("Error while cancelling transfer")
		}
	}
	return transfers
}

// CloseAll cancels every registered transfer, leaving the registry empty.
// Close errors are joined.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	transfers := m.transfers
	m.transfers = make(map[transferKey]*Transfer)
	m.mu.Unlock()

	var errs []error
	for _, t := range transfers {
		if err := ignoreFinished(t.Cancel()); err != nil {
			errs = append(errs, fmt.Errorf("friend %d file %d: %w", t.FriendID, t.FileID, err))
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Manager.CloseAll",
		"closed":   len(transfers),
		"errors":   len(errs),
	}).Info("Closed all active transfers")

	return errors.Join(errs...)
}

// Len returns the number of registered transfers.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transfers)
}

// List returns snapshots of all transfers ordered by (friend id, file id).
func (m *Manager) List() []Info {
	m.mu.RLock()
	transfers := make([]*Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		transfers = append(transfers, t)
	}
	m.mu.RUnlock()

	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].FriendID != transfers[j].FriendID {
			return transfers[i].FriendID < transfers[j].FriendID
		}
		return transfers[i].FileID < transfers[j].FileID
	})

	out := make([]Info, len(transfers))
	for i, t := range transfers {
		out[i] = t.Info()
	}
	return out
}
