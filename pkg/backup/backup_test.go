package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spideyz0r/searchbar/pkg/testutil"
)

func setNow(t *testing.T, ts time.Time) {
	t.Helper()
	orig := now
	now = func() time.Time { return ts }
	t.Cleanup(func() { now = orig })
}

func TestCreateAndRestore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backups")
	terms := []string{"kubernetes", "docker", "git"}

	info, err := Create(terms, dir, "hunter2")
	require.NoError(t, err)
	assert.FileExists(t, info.Path)
	assert.Positive(t, info.Size)

	stat, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), stat.Mode().Perm())

	restored, err := Restore(info.Path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, terms, restored)
}

func TestRestore_WrongPassphrase(t *testing.T) {
	info, err := Create([]string{"secret"}, t.TempDir(), "right")
	require.NoError(t, err)

	_, err = Restore(info.Path, "wrong")
	assert.ErrorContains(t, err, "failed to decrypt backup")
}

func TestCreate_EmptyPassphrase(t *testing.T) {
	_, err := Create([]string{"a"}, t.TempDir(), "")
	assert.ErrorContains(t, err, "passphrase cannot be empty")
}

func TestListAndRotate(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		setNow(t, base.Add(time.Duration(i)*time.Hour))
		_, err := Create([]string{"term"}, dir, "pass")
		require.NoError(t, err)
	}
	// Unrelated files are ignored.
	testutil.TempFile(t, dir, "notes.txt", "x")
	testutil.TempFile(t, dir, "other-host-bad.json.enc", "x")

	backups, err := List(dir)
	require.NoError(t, err)
	require.Len(t, backups, 4)
	assert.True(t, backups[0].Timestamp.Equal(base.Add(3*time.Hour)))
	assert.True(t, backups[3].Timestamp.Equal(base))

	require.NoError(t, Rotate(dir, 2))
	backups, err = List(dir)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.True(t, backups[1].Timestamp.Equal(base.Add(2*time.Hour)))

	require.NoError(t, Rotate(dir, 0))
	backups, err = List(dir)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestList_MissingDir(t *testing.T) {
	backups, err := List(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestParseBackupFilename(t *testing.T) {
	info, err := parseBackupFilename("recent-my_laptop-20260301-120000.json.enc")
	require.NoError(t, err)
	assert.Equal(t, "my_laptop", info.Hostname)
	assert.Equal(t, 2026, info.Timestamp.Year())

	_, err = parseBackupFilename("history-host-20260301-120000.json.enc")
	assert.Error(t, err)
	_, err = parseBackupFilename("recent-host-notatime.json.enc")
	assert.Error(t, err)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "1.5 MiB", FormatSize(1536*1024))
}
