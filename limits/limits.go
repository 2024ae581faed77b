package limits

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxPlaintextMessage is the Tox protocol limit for plaintext messages (1372 bytes)
	MaxPlaintextMessage = 1372

	// MaxAvatarSize is the default ceiling for incoming avatar transfers.
	MaxAvatarSize = 20 * 1024 * 1024

	// MaxNotificationLength bounds message previews shown in notifications.
	MaxNotificationLength = 200

	// MaxFileNameLength is the maximum accepted file name length in bytes.
	MaxFileNameLength = 255

	// MaxNameLength is the Tox limit for a display name (128 bytes).
	MaxNameLength = 128

	// MaxStatusMessageLength is the Tox limit for a status message (1007 bytes).
	MaxStatusMessageLength = 1007

	// DefaultMessageHistory is how many stored messages are loaded when a
	// conversation is opened without an explicit limit.
	DefaultMessageHistory = 20
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrTooLong indicates a profile field exceeds its limit.
	ErrTooLong = errors.New("value too long")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidatePlaintextMessage validates a plaintext message size against MaxPlaintextMessage.
func ValidatePlaintextMessage(message []byte) error {
	return ValidateMessageSize(message, MaxPlaintextMessage)
}

// ValidateName checks a display name. Empty names are allowed.
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("name: %w: %d > %d bytes", ErrTooLong, len(name), MaxNameLength)
	}
	return nil
}

// ValidateStatusMessage checks a status message. Empty clears it.
func ValidateStatusMessage(msg string) error {
	if len(msg) > MaxStatusMessageLength {
		return fmt.Errorf("status message: %w: %d > %d bytes", ErrTooLong, len(msg), MaxStatusMessageLength)
	}
	return nil
}

// AvatarAllowed reports whether an avatar of the declared size fits under
// maxSize. A non-positive maxSize selects MaxAvatarSize.
func AvatarAllowed(size uint64, maxSize int64) bool {
	if maxSize <= 0 {
		maxSize = MaxAvatarSize
	}
	return size <= uint64(maxSize)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
