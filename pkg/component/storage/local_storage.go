package storage

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/pkg/util"
)

// chunkSessionDir relative staging dir layout shared by both storage types
const chunkSessionDir = "chunks/sessions"

// LocalStorage chunk storage on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage new local storage rooted at basePath
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

func (l *LocalStorage) sessionDir(sessionID string) string {
	return filepath.Join(l.basePath, chunkSessionDir, sessionID)
}

func (l *LocalStorage) chunkPath(sessionID string, index int) string {
	return filepath.Join(l.sessionDir(sessionID), strconv.Itoa(index))
}

// SaveChunk write or overwrite one chunk
func (l *LocalStorage) SaveChunk(sessionID string, index int, reader io.Reader) (int64, error) {
	if err := util.CheckAndCreateDir(l.sessionDir(sessionID)); err != nil {
		return 0, errors.Wrap(err, "create session staging dir")
	}
	file, err := os.OpenFile(l.chunkPath(sessionID, index), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		logrus.Errorf("failed to open chunk file: %v", err)
		return 0, err
	}
	defer file.Close()
	n, err := io.Copy(file, reader)
	if err != nil {
		logrus.Errorf("failed to write chunk file: %v", err)
		return n, err
	}
	return n, nil
}

// ChunkExists whether the chunk file is present
func (l *LocalStorage) ChunkExists(sessionID string, index int) bool {
	_, err := os.Stat(l.chunkPath(sessionID, index))
	return err == nil
}

// ListChunks list session chunks in ascending numeric index order
func (l *LocalStorage) ListChunks(sessionID string) ([]Chunk, error) {
	dir := l.sessionDir(sessionID)
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	chunks := make([]Chunk, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		index, err := strconv.Atoi(info.Name())
		if err != nil {
			// foreign file in the staging dir, ignore
			continue
		}
		fi, err := info.Info()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, info.Name())
		chunks = append(chunks, Chunk{
			Index: index,
			Size:  fi.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// CleanupChunks remove the session staging area, no-op when already gone
func (l *LocalStorage) CleanupChunks(sessionID string) error {
	return os.RemoveAll(l.sessionDir(sessionID))
}

// SaveFile write a final artifact under the base path
func (l *LocalStorage) SaveFile(path string, reader io.Reader) (int64, error) {
	full := filepath.Join(l.basePath, path)
	if err := util.CheckAndCreateDir(filepath.Dir(full)); err != nil {
		return 0, errors.Wrap(err, "create file dir")
	}
	file, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		logrus.Errorf("failed to open file: %v", err)
		return 0, err
	}
	defer file.Close()
	return io.Copy(file, reader)
}

// OpenFile open a final artifact
func (l *LocalStorage) OpenFile(path string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(l.basePath, path))
}

// RemoveFile delete a final artifact
func (l *LocalStorage) RemoveFile(path string) error {
	err := os.Remove(filepath.Join(l.basePath, path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
