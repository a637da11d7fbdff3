package file

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterTracksAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.bin")
	svc := NewService()

	w, err := svc.CreateWriter(path)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	_, err = w.Write(make([]byte, 1024))
	require.NoError(t, err)
	assert.Equal(t, int64(1024), w.Written())

	require.NoError(t, w.Truncate(700))
	assert.Equal(t, int64(700), w.Written())
	require.NoError(t, w.Close())

	info, err := svc.GetFileInfo(path)
	require.NoError(t, err)
	assert.Equal(t, int64(700), info.Size())
	assert.Equal(t, "dump.bin", info.Name())
	assert.False(t, info.IsDir())
}

func TestOpenReader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.img")
	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o644))
	svc := NewService()

	r, err := svc.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(6), r.Size())
	assert.Equal(t, "boot.img", r.Name())

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))

	_, err = svc.OpenReader(dir)
	assert.Error(t, err)
	_, err = svc.OpenReader(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestCreateWriterMissingParent(t *testing.T) {
	_, err := NewService().CreateWriter(filepath.Join(t.TempDir(), "nope", "dump.bin"))
	assert.Error(t, err)
}
