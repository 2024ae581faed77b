package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/limits"
)

var (
	// ErrInvalidFileName indicates a name that is empty after sanitizing.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrFileNameTooLong indicates that a file name exceeds the maximum allowed length.
	ErrFileNameTooLong = errors.New("file name too long")
)

// AvatarExtension is appended to the public key to form an avatar file name.
const AvatarExtension = ".png"

// SanitizeFileName turns a peer supplied name into a single path element.
// Both '/' and '\' are removed regardless of platform, as are NUL bytes.
// Names that reduce to nothing, "." or ".." are rejected.
func SanitizeFileName(name string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	if len(cleaned) > limits.MaxFileNameLength {
		return "", fmt.Errorf("%w: %d bytes", ErrFileNameTooLong, len(cleaned))
	}
	return cleaned, nil
}

// AvatarFileName is the canonical avatar name for a public key.
func AvatarFileName(pk engine.PublicKey) string {
	return pk.Upper() + AvatarExtension
}

// AvatarPath joins dir and the canonical avatar name for pk.
func AvatarPath(dir string, pk engine.PublicKey) string {
	return filepath.Join(dir, AvatarFileName(pk))
}

// AvatarFileID is the 32 byte file id announced with an avatar: the
// BLAKE2b-256 digest of its contents. Peers compare it against the avatar
// they already hold.
func AvatarFileID(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// UniquePath returns a path in dir for name that does not exist yet, adding
// " (2)", " (3)" ... before the extension as needed.
func UniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 2; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
	}
}
