package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveAndListChunks(t *testing.T) {
	store := NewLocalStorage(t.TempDir())

	// deliberately out of order, with a double digit index so a string sort
	// would get it wrong
	for _, index := range []int{2, 10, 1} {
		n, err := store.SaveChunk("sess-1", index, bytes.NewReader([]byte{byte(index)}))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}

	chunks, err := store.ListChunks("sess-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, 2, chunks[1].Index)
	assert.Equal(t, 10, chunks[2].Index)

	rc, err := chunks[2].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{10}, data)
}

func TestLocalSaveChunkOverwrites(t *testing.T) {
	store := NewLocalStorage(t.TempDir())

	_, err := store.SaveChunk("sess-1", 0, bytes.NewReader([]byte("first")))
	require.NoError(t, err)
	n, err := store.SaveChunk("sess-1", 0, bytes.NewReader([]byte("second")))
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	chunks, err := store.ListChunks("sess-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(6), chunks[0].Size)
}

func TestLocalListChunksIgnoresForeignFiles(t *testing.T) {
	base := t.TempDir()
	store := NewLocalStorage(base)

	_, err := store.SaveChunk("sess-1", 0, bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "chunks", "sessions", "sess-1", ".tmp-upload"), []byte("junk"), 0644))

	chunks, err := store.ListChunks("sess-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestLocalCleanupChunks(t *testing.T) {
	store := NewLocalStorage(t.TempDir())

	_, err := store.SaveChunk("sess-1", 0, bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	assert.True(t, store.ChunkExists("sess-1", 0))

	require.NoError(t, store.CleanupChunks("sess-1"))
	assert.False(t, store.ChunkExists("sess-1", 0))

	// cleanup of a session that never existed is a no-op
	require.NoError(t, store.CleanupChunks("sess-2"))

	chunks, err := store.ListChunks("sess-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestLocalSaveFileRoundTrip(t *testing.T) {
	store := NewLocalStorage(t.TempDir())

	content := []byte("final artifact content")
	n, err := store.SaveFile("files/owner/abc.bin", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	rc, err := store.OpenFile("files/owner/abc.bin")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	require.NoError(t, store.RemoveFile("files/owner/abc.bin"))
	require.NoError(t, store.RemoveFile("files/owner/abc.bin"))
}
