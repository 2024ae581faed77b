package toxclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilePaths(t *testing.T) {
	dir := filepath.Join("data", "tox")
	assert.Equal(t, filepath.Join(dir, "alice.tox"), ProfilePath(dir, "alice"))
	assert.Equal(t, filepath.Join(dir, "alice.db"), DatabasePath(dir, "alice"))
	assert.Equal(t, filepath.Join(dir, "avatars"), AvatarDir(dir))
}

func TestUniqueProfileName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "profile", UniqueProfileName(dir, "profile"))

	require.NoError(t, os.WriteFile(ProfilePath(dir, "profile"), []byte("x"), 0o600))
	assert.Equal(t, "profile (2)", UniqueProfileName(dir, "profile"))

	require.NoError(t, os.WriteFile(ProfilePath(dir, "profile (2)"), []byte("x"), 0o600))
	assert.Equal(t, "profile (3)", UniqueProfileName(dir, "profile"))

	// Only profile files count; a leftover database does not reserve a name.
	require.NoError(t, os.WriteFile(DatabasePath(dir, "other"), []byte("x"), 0o600))
	assert.Equal(t, "other", UniqueProfileName(dir, "other"))
}

func TestSaveAndLoadProfile(t *testing.T) {
	dir := t.TempDir()
	data := []byte{0x01, 0x02, 0x03}

	require.NoError(t, SaveProfile(dir, "bob", data))
	got, err := LoadProfile(dir, "bob")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	info, err := os.Stat(ProfilePath(dir, "bob"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, SaveProfile(dir, "bob", []byte{0x09}))
	got, err = LoadProfile(dir, "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09}, got)
}

func TestLoadProfileFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfile(dir, "missing")
	assert.ErrorIs(t, err, ErrProfileLoad)

	require.NoError(t, os.WriteFile(ProfilePath(dir, "empty"), nil, 0o600))
	_, err = LoadProfile(dir, "empty")
	assert.ErrorIs(t, err, ErrProfileLoad)
}
