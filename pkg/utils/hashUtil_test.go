package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", h)
}

func TestHashDirStableAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	first, err := HashDir(dir)
	require.NoError(t, err)
	second, err := HashDir(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("changed"), 0o644))
	third, err := HashDir(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestHashDirMissing(t *testing.T) {
	_, err := HashDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCopyTreeDirectory(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyTree(src, dst))

	want, err := HashDir(src)
	require.NoError(t, err)
	got, err := HashDir(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// the copy does not follow later writes to the source
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("changed"), 0o644))
	data, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestCopyTreeSingleFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "coverage.out")
	require.NoError(t, os.WriteFile(src, []byte("mode: set\n"), 0o644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyTree(src, dst))
	data, err := os.ReadFile(filepath.Join(dst, "coverage.out"))
	require.NoError(t, err)
	assert.Equal(t, "mode: set\n", string(data))
}

func TestCopyTreeMissingSource(t *testing.T) {
	assert.Error(t, CopyTree(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "copy")))
}
