package timestamps

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := touch(t, dir, "src")
	dst := touch(t, dir, "dst")

	mod := time.Date(2020, 5, 17, 10, 30, 0, 0, time.UTC)
	acc := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, acc, mod))

	require.NoError(t, Copy(src, dst))

	got, err := Read(dst)
	require.NoError(t, err)
	assert.True(t, got.Modified.Equal(mod), "modified %v", got.Modified)
	assert.True(t, got.Accessed.Equal(acc), "accessed %v", got.Accessed)
}

func TestApplyIgnoresCreationWhereUnsupported(t *testing.T) {
	path := touch(t, t.TempDir(), "f")
	born := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	mod := time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, Apply(path, Timestamps{Modified: mod, Accessed: mod, Created: &born}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mod))
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.Error(t, Copy(filepath.Join(t.TempDir(), "missing"), "x"))
}
