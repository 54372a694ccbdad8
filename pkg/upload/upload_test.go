package upload

import (
	"bytes"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/vaultbox/vaultbox/db/dao"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
)

// memChunkStore in-memory chunk storage for tests.
type memChunkStore struct {
	mu       sync.Mutex
	chunks   map[string]map[int][]byte
	files    map[string][]byte
	failures struct {
		cleanup  map[string]bool
		saveFile bool
	}
}

func newMemChunkStore() *memChunkStore {
	s := &memChunkStore{
		chunks: make(map[string]map[int][]byte),
		files:  make(map[string][]byte),
	}
	s.failures.cleanup = make(map[string]bool)
	return s
}

func (s *memChunkStore) SaveChunk(sessionID string, index int, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[sessionID] == nil {
		s.chunks[sessionID] = make(map[int][]byte)
	}
	s.chunks[sessionID][index] = data
	return int64(len(data)), nil
}

func (s *memChunkStore) ChunkExists(sessionID string, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chunks[sessionID][index]
	return ok
}

func (s *memChunkStore) ListChunks(sessionID string) ([]storage.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chunks []storage.Chunk
	for index, data := range s.chunks[sessionID] {
		data := data
		chunks = append(chunks, storage.Chunk{
			Index: index,
			Size:  int64(len(data)),
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *memChunkStore) CleanupChunks(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures.cleanup[sessionID] {
		return io.ErrUnexpectedEOF
	}
	delete(s.chunks, sessionID)
	return nil
}

func (s *memChunkStore) SaveFile(path string, reader io.Reader) (int64, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures.saveFile {
		return 0, io.ErrUnexpectedEOF
	}
	s.files[path] = data
	return int64(len(data)), nil
}

func (s *memChunkStore) OpenFile(path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memChunkStore) RemoveFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	return nil
}

func (s *memChunkStore) chunkCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks[sessionID])
}

func (s *memChunkStore) fileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *memChunkStore) fileContent() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, data := range s.files {
		return data, true
	}
	return nil, false
}

// newTestRegistry registry over a fresh memory store with a fixed clock.
func newTestRegistry() (*Registry, *time.Time) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	registry := NewRegistry(dao.NewMemoryUploadSessionDao())
	registry.SetClock(func() time.Time { return now })
	return registry, &now
}
