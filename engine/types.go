package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// PublicKeySize is the length of a Tox public key in bytes.
const PublicKeySize = 32

// ErrInvalidPublicKey indicates a public key string that is not 64 hex characters.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a fixed-length peer identifier.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a 64 character hex string. Case is ignored.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(raw), PublicKeySize)
	}
	copy(pk[:], raw)
	return pk, nil
}

// Hex returns the lowercase hex form, which is what the message store keys on.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// Upper returns the uppercase hex form used for avatar file names.
func (pk PublicKey) Upper() string {
	return strings.ToUpper(pk.Hex())
}

// Short returns a truncated form suitable for log fields.
func (pk PublicKey) Short() string {
	return hex.EncodeToString(pk[:8])
}

// IsZero reports whether the key is all zeroes.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

func (pk PublicKey) String() string {
	return pk.Hex()
}

// ConnectionStatus is the coarse reachability tier of the local node or a friend.
type ConnectionStatus uint8

const (
	ConnectionNone ConnectionStatus = iota
	ConnectionTCP
	ConnectionUDP
)

// Online reports whether the tier is anything other than none.
func (c ConnectionStatus) Online() bool {
	return c != ConnectionNone
}

func (c ConnectionStatus) String() string {
	switch c {
	case ConnectionNone:
		return "none"
	case ConnectionTCP:
		return "tcp"
	case ConnectionUDP:
		return "udp"
	default:
		return fmt.Sprintf("connection(%d)", uint8(c))
	}
}

// UserStatus is the presence a user advertises.
type UserStatus uint8

const (
	UserStatusNone UserStatus = iota
	UserStatusAway
	UserStatusBusy
)

func (s UserStatus) String() string {
	switch s {
	case UserStatusNone:
		return "none"
	case UserStatusAway:
		return "away"
	case UserStatusBusy:
		return "busy"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// FileKind distinguishes regular files from avatar transfers.
type FileKind uint32

const (
	FileKindData FileKind = iota
	FileKindAvatar
)

// FileControl is a transfer control message.
type FileControl uint8

const (
	FileControlResume FileControl = iota
	FileControlPause
	FileControlCancel
)

func (c FileControl) String() string {
	switch c {
	case FileControlResume:
		return "resume"
	case FileControlPause:
		return "pause"
	case FileControlCancel:
		return "cancel"
	default:
		return fmt.Sprintf("control(%d)", uint8(c))
	}
}

// MessageType is the kind of a friend message.
type MessageType uint8

const (
	MessageTypeNormal MessageType = iota
	MessageTypeAction
)

// ProxyType selects the proxy the engine tunnels through.
type ProxyType uint8

const (
	ProxyTypeNone ProxyType = iota
	ProxyTypeHTTP
	ProxyTypeSOCKS5
)
