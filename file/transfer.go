package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrChunkTooLarge indicates that a chunk exceeds the maximum allowed size.
	ErrChunkTooLarge = errors.New("chunk size exceeds maximum allowed")

	// ErrWrongDirection indicates a read on an incoming or a write on an outgoing transfer.
	ErrWrongDirection = errors.New("operation not valid for transfer direction")

	// ErrNotRunning indicates I/O on a transfer whose file is not open.
	ErrNotRunning = errors.New("transfer is not running")

	// ErrFinished indicates a state change on a transfer that already ended.
	ErrFinished = errors.New("transfer already finished")
)

// TransferDirection indicates whether a transfer is incoming or outgoing.
type TransferDirection uint8

const (
	// TransferDirectionIncoming represents a file being received.
	TransferDirectionIncoming TransferDirection = iota
	// TransferDirectionOutgoing represents a file being sent.
	TransferDirectionOutgoing
)

func (d TransferDirection) String() string {
	if d == TransferDirectionOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// TransferState represents the current state of a file transfer.
type TransferState uint8

const (
	// TransferStatePending indicates the transfer is waiting to start.
	TransferStatePending TransferState = iota
	// TransferStateRunning indicates the transfer is in progress.
	TransferStateRunning
	// TransferStatePaused indicates the transfer is temporarily paused.
	TransferStatePaused
	// TransferStateCompleted indicates the transfer has finished successfully.
	TransferStateCompleted
	// TransferStateCancelled indicates the transfer was cancelled.
	TransferStateCancelled
	// TransferStateError indicates the transfer failed due to an error.
	TransferStateError
)

func (s TransferState) String() string {
	switch s {
	case TransferStatePending:
		return "pending"
	case TransferStateRunning:
		return "running"
	case TransferStatePaused:
		return "paused"
	case TransferStateCompleted:
		return "completed"
	case TransferStateCancelled:
		return "cancelled"
	case TransferStateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Finished reports whether s is terminal.
func (s TransferState) Finished() bool {
	return s >= TransferStateCompleted
}

// MaxChunkSize is the maximum allowed chunk size to prevent resource exhaustion.
const MaxChunkSize = 65536

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Transfer is one file exchange with a friend.
type Transfer struct {
	// ID correlates log lines and presentation updates for this transfer.
	// Unlike FileID it is never reused.
	ID uuid.UUID

	FriendID  uint32
	FileID    uint32
	Direction TransferDirection
	// FileName is the human readable name shown to the user.
	FileName string
	// Path is where the file is read from or written to.
	Path     string
	FileSize uint64
	IsAvatar bool

	State       TransferState
	StartTime   time.Time
	Transferred uint64
	// Offset is one past the highest byte written (incoming) or read (outgoing).
	Offset     uint64
	FileHandle *os.File
	Error      error

	mu           sync.Mutex
	lastActivity time.Time
	timeProvider TimeProvider
}

func newTransfer(friendID, fileID uint32, direction TransferDirection, path, fileName string, fileSize uint64, isAvatar bool) *Transfer {
	tp := defaultTimeProvider
	t := &Transfer{
		ID:           uuid.New(),
		FriendID:     friendID,
		FileID:       fileID,
		Direction:    direction,
		FileName:     fileName,
		Path:         path,
		FileSize:     fileSize,
		IsAvatar:     isAvatar,
		State:        TransferStatePending,
		timeProvider: tp,
		lastActivity: tp.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "newTransfer",
		"transfer_id": t.ID,
		"friend_id":   friendID,
		"file_id":     fileID,
		"file_name":   fileName,
		"file_size":   fileSize,
		"direction":   direction,
		"avatar":      isAvatar,
	}).Debug("Creating file transfer")

	return t
}

// NewIncoming creates a transfer that will write the peer's file to path.
func NewIncoming(friendID, fileID uint32, path, fileName string, fileSize uint64, isAvatar bool) *Transfer {
	return newTransfer(friendID, fileID, TransferDirectionIncoming, path, fileName, fileSize, isAvatar)
}

// NewOutgoing creates a transfer that will serve reads from path.
func NewOutgoing(friendID, fileID uint32, path, fileName string, fileSize uint64, isAvatar bool) *Transfer {
	return newTransfer(friendID, fileID, TransferDirectionOutgoing, path, fileName, fileSize, isAvatar)
}

// SetTimeProvider replaces the clock used for activity tracking and marks
// the transfer active now. Manager.Add applies its own clock this way.
func (t *Transfer) SetTimeProvider(tp TimeProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeProvider = tp
	t.lastActivity = tp.Now()
}

// Open acquires the file handle: created and truncated for incoming
// transfers, opened read-only for outgoing ones. On failure the transfer
// moves to TransferStateError.
func (t *Transfer) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State != TransferStatePending {
		return fmt.Errorf("open in state %s: %w", t.State, ErrFinished)
	}

	var err error
	if t.Direction == TransferDirectionOutgoing {
		t.FileHandle, err = os.Open(t.Path)
	} else {
		t.FileHandle, err = os.OpenFile(t.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Open",
			"friend_id": t.FriendID,
			"file_id":   t.FileID,
			"path":      t.Path,
			"direction": t.Direction,
			"error":     err.Error(),
		}).Error("Failed to open file for transfer")
		t.Error = err
		t.State = TransferStateError
		return err
	}

	t.State = TransferStateRunning
	t.StartTime = t.timeProvider.Now()
	t.lastActivity = t.StartTime

	logrus.WithFields(logrus.Fields{
		"function":    "Open",
		"transfer_id": t.ID,
		"friend_id":   t.FriendID,
		"file_id":     t.FileID,
		"path":        t.Path,
		"direction":   t.Direction,
	}).Info("File transfer started")

	return nil
}

func (t *Transfer) checkIO(direction TransferDirection) error {
	if t.Direction != direction {
		return ErrWrongDirection
	}
	if t.FileHandle == nil || (t.State != TransferStateRunning && t.State != TransferStatePaused) {
		return ErrNotRunning
	}
	return nil
}

// WriteAt writes data at position in an incoming transfer. Positions are
// honored as given; chunks do not have to arrive in order.
func (t *Transfer) WriteAt(position uint64, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(data) > MaxChunkSize {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(data), MaxChunkSize)
	}
	if err := t.checkIO(TransferDirectionIncoming); err != nil {
		return err
	}
	if t.State == TransferStatePaused {
		logrus.WithFields(logrus.Fields{
			"function":  "WriteAt",
			"friend_id": t.FriendID,
			"file_id":   t.FileID,
			"position":  position,
		}).Debug("Chunk received while paused, writing anyway")
	}

	if _, err := t.FileHandle.WriteAt(data, int64(position)); err != nil {
		t.Error = err
		return err
	}

	t.Transferred += uint64(len(data))
	if end := position + uint64(len(data)); end > t.Offset {
		t.Offset = end
	}
	t.lastActivity = t.timeProvider.Now()
	return nil
}

// ReadAt reads exactly length bytes at position from an outgoing transfer.
// Requests above MaxChunkSize are served with MaxChunkSize bytes; the peer
// asks again for the rest. A range running past the end of the file is an
// error.
func (t *Transfer) ReadAt(position uint64, length int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if length < 0 {
		return nil, fmt.Errorf("negative chunk length %d", length)
	}
	if err := t.checkIO(TransferDirectionOutgoing); err != nil {
		return nil, err
	}
	if length > MaxChunkSize {
		logrus.WithFields(logrus.Fields{
			"function":  "ReadAt",
			"friend_id": t.FriendID,
			"file_id":   t.FileID,
			"requested": length,
		}).Debug("Chunk request above maximum, sending a short chunk")
		length = MaxChunkSize
	}

	buf := make([]byte, length)
	n, err := t.FileHandle.ReadAt(buf, int64(position))
	if n < length {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		t.Error = err
		return nil, fmt.Errorf("read %d of %d bytes at %d: %w", n, length, position, err)
	}

	t.Transferred += uint64(length)
	if end := position + uint64(length); end > t.Offset {
		t.Offset = end
	}
	t.lastActivity = t.timeProvider.Now()
	return buf, nil
}

// Pause moves a running transfer to TransferStatePaused.
func (t *Transfer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != TransferStateRunning {
		return fmt.Errorf("pause in state %s: %w", t.State, ErrNotRunning)
	}
	t.State = TransferStatePaused
	return nil
}

// Resume continues a paused file transfer.
func (t *Transfer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != TransferStatePaused {
		return errors.New("transfer is not paused")
	}
	t.State = TransferStateRunning
	return nil
}

// finish closes the handle and moves to state. A transfer only finishes once.
func (t *Transfer) finish(state TransferState, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State.Finished() {
		return ErrFinished
	}

	var closeErr error
	if t.FileHandle != nil {
		closeErr = t.FileHandle.Close()
		t.FileHandle = nil
		if closeErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "finish",
				"friend_id": t.FriendID,
				"file_id":   t.FileID,
				"path":      t.Path,
				"error":     closeErr.Error(),
			}).Warn("Failed to close file handle")
		}
	}

	t.State = state
	if cause != nil {
		t.Error = cause
	}
	return closeErr
}

// Complete closes the handle and marks the transfer completed.
func (t *Transfer) Complete() error {
	return t.finish(TransferStateCompleted, nil)
}

// Cancel closes the handle and marks the transfer cancelled.
func (t *Transfer) Cancel() error {
	return t.finish(TransferStateCancelled, nil)
}

// Fail closes the handle and records cause.
func (t *Transfer) Fail(cause error) error {
	return t.finish(TransferStateError, cause)
}

// GetState returns the current state.
func (t *Transfer) GetState() TransferState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State
}

// GetProgress returns the current progress of the transfer as a percentage.
// Unknown sizes report 0.
func (t *Transfer) GetProgress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FileSize == 0 {
		return 0
	}
	return float64(t.Offset) / float64(t.FileSize) * 100
}

// awaitingPeer reports an outgoing transfer from which no chunk was read yet.
func (t *Transfer) awaitingPeer() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Direction == TransferDirectionOutgoing && t.Transferred == 0
}

// IdleFor returns the time since the transfer was opened, registered or
// last moved a chunk.
func (t *Transfer) IdleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeProvider.Since(t.lastActivity)
}

// Info is a read-only view of a transfer for presentation.
type Info struct {
	ID          string  `json:"id"`
	FriendID    uint32  `json:"friendId"`
	FileID      uint32  `json:"fileId"`
	Direction   string  `json:"direction"`
	State       string  `json:"state"`
	FileName    string  `json:"fileName"`
	FileSize    uint64  `json:"fileSize"`
	Transferred uint64  `json:"transferred"`
	Progress    float64 `json:"progress"`
	IsAvatar    bool    `json:"isAvatar"`
}

// Info returns a snapshot of the transfer.
func (t *Transfer) Info() Info {
	progress := t.GetProgress()
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:          t.ID.String(),
		FriendID:    t.FriendID,
		FileID:      t.FileID,
		Direction:   t.Direction.String(),
		State:       t.State.String(),
		FileName:    t.FileName,
		FileSize:    t.FileSize,
		Transferred: t.Transferred,
		Progress:    progress,
		IsAvatar:    t.IsAvatar,
	}
}
