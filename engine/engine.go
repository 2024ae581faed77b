package engine

import (
	"errors"
	"time"
)

var (
	// ErrFriendNotFound is returned for operations on an unknown friend id.
	ErrFriendNotFound = errors.New("friend not found")

	// ErrCreate wraps any failure constructing an engine instance.
	ErrCreate = errors.New("engine creation failed")

	// ErrLoad wraps a failure decoding previously saved engine state.
	ErrLoad = errors.New("engine state could not be loaded")
)

// ProxyOptions configures an outbound proxy.
type ProxyOptions struct {
	Type ProxyType
	Host string
	Port uint16
}

// Options configure a new engine instance.
type Options struct {
	UDPEnabled     bool
	IPv6Enabled    bool
	LocalDiscovery bool
	Proxy          ProxyOptions
	TCPPort        uint16

	// SaveData, when non-empty, is serialized state from a previous
	// SaveData call. The engine must restore identity and friends from it
	// or fail; it never silently falls back to a fresh identity.
	SaveData []byte
}

// Constructor builds an engine from options.
type Constructor func(opts Options) (Engine, error)

// Engine is the narrow surface the client drives. Implementations are not
// required to be safe for concurrent use; the client only calls them from
// its loop goroutine.
type Engine interface {
	// IterationInterval is how long the caller should sleep before the next Iterate.
	IterationInterval() time.Duration
	// Iterate runs one engine tick and returns the events it produced, in order.
	Iterate() []Event

	Bootstrap(host string, port uint16, publicKeyHex string) error

	SelfAddress() string
	SelfPublicKey() PublicKey
	SelfName() string
	SelfStatusMessage() string
	SelfStatus() UserStatus
	SetName(name string) error
	SetStatusMessage(message string) error

	FriendList() []uint32
	FriendName(friendID uint32) (string, error)
	FriendStatusMessage(friendID uint32) (string, error)
	FriendPublicKey(friendID uint32) (PublicKey, error)
	// FriendAdd sends a friend request to a full Tox address.
	FriendAdd(address, message string) (uint32, error)
	// FriendAddNoRequest accepts a friend by public key without sending a request.
	FriendAddNoRequest(publicKey PublicKey) (uint32, error)
	FriendDelete(friendID uint32) error

	SendMessage(friendID uint32, messageType MessageType, text string) (uint32, error)

	// FileSend offers a file and returns the per-friend file id.
	FileSend(friendID uint32, kind FileKind, size uint64, fileID [32]byte, filename string) (uint32, error)
	FileSendChunk(friendID, fileID uint32, position uint64, data []byte) error
	FileControl(friendID, fileID uint32, control FileControl) error

	// SaveData serializes identity and friend state.
	SaveData() ([]byte, error)
	Close()
}
