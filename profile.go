package toxclient

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/config"
)

const (
	// ProfileExtension is the suffix of a saved engine state file.
	ProfileExtension = ".tox"
	// DatabaseExtension is the suffix of a profile's message store.
	DatabaseExtension = ".db"
	// DefaultProfileName is the base name for newly created profiles.
	DefaultProfileName = "profile"
	// AvatarDirName is the avatar directory inside the data directory.
	AvatarDirName = "avatars"
)

// ProfilePath is the saved engine state file for profile.
func ProfilePath(dataDir, profile string) string {
	return filepath.Join(dataDir, profile+ProfileExtension)
}

// DatabasePath is the message store file for profile.
func DatabasePath(dataDir, profile string) string {
	return filepath.Join(dataDir, profile+DatabaseExtension)
}

// AvatarDir is where own and received avatars are kept.
func AvatarDir(dataDir string) string {
	return filepath.Join(dataDir, AvatarDirName)
}

// UniqueProfileName returns base, or base followed by " (2)", " (3)" ...,
// whichever is the first without a profile file in dataDir.
func UniqueProfileName(dataDir, base string) string {
	name := base
	for i := 2; ; i++ {
		if _, err := os.Stat(ProfilePath(dataDir, name)); errors.Is(err, os.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s (%d)", base, i)
	}
}

// LoadProfile reads the saved engine state for profile. A missing or empty
// file is an ErrProfileLoad: an existing profile is never silently replaced
// by a fresh identity.
func LoadProfile(dataDir, profile string) ([]byte, error) {
	path := ProfilePath(dataDir, profile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProfileLoad, profile, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: file is empty", ErrProfileLoad, profile)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadProfile",
		"profile":  profile,
		"bytes":    len(data),
	}).Debug("Profile read")
	return data, nil
}

// SaveProfile replaces the profile file with data.
func SaveProfile(dataDir, profile string, data []byte) error {
	path := ProfilePath(dataDir, profile)
	if err := config.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("save profile %s: %w", profile, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SaveProfile",
		"profile":  profile,
		"bytes":    len(data),
	}).Info("Profile saved")
	return nil
}
