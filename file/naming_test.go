package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/limits"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"photo.jpg", "photo.jpg", nil},
		{"../../etc/passwd", "....etcpasswd", nil},
		{`..\..\windows\system32`, "....windowssystem32", nil},
		{"/abs/path.txt", "abspath.txt", nil},
		{"a\x00b", "ab", nil},
		{"  spaced.txt ", "spaced.txt", nil},
		{"", "", ErrInvalidFileName},
		{"/", "", ErrInvalidFileName},
		{"..", "", ErrInvalidFileName},
		{"./", "", ErrInvalidFileName},
		{strings.Repeat("n", limits.MaxFileNameLength+1), "", ErrFileNameTooLong},
	}

	for _, tt := range tests {
		got, err := SanitizeFileName(tt.in)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "/")
		assert.NotContains(t, got, `\`)
	}
}

func TestAvatarFileName(t *testing.T) {
	pk, err := engine.ParsePublicKey(strings.Repeat("ab", engine.PublicKeySize))
	require.NoError(t, err)

	name := AvatarFileName(pk)
	assert.Equal(t, strings.Repeat("AB", engine.PublicKeySize)+".png", name)
	assert.Equal(t, filepath.Join("/data/avatars", name), AvatarPath("/data/avatars", pk))
}

func TestAvatarFileID(t *testing.T) {
	data := []byte("avatar bytes")
	id := AvatarFileID(data)
	assert.Equal(t, blake2b.Sum256(data), id)
	assert.NotEqual(t, id, AvatarFileID([]byte("other bytes")))
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	p, err := UniquePath(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.pdf"), p)

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	p2, err := UniquePath(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report (2).pdf"), p2)

	require.NoError(t, os.WriteFile(p2, nil, 0o644))
	p3, err := UniquePath(dir, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report (3).pdf"), p3)
}
