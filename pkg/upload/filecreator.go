package upload

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
)

// FileMeta metadata handed to the file creation collaborator along with the
// merged content.
type FileMeta struct {
	Name     string
	OwnerID  string
	ParentID string
	Path     string
	MimeType string
	Size     int64
}

// FileRecord a persisted file entity.
type FileRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// FileCreator registers a merged byte stream as a durable file entity. The
// finalizer treats it as an opaque collaborator, the real file service sits
// behind it.
type FileCreator interface {
	CreateFile(meta FileMeta, content io.Reader) (*FileRecord, error)
}

// StorageFileCreator writes final artifacts through the chunk storage
// component under files/<owner>/<uuid>.<ext>.
type StorageFileCreator struct {
	store storage.ChunkStorage
}

// NewStorageFileCreator new storage backed file creator
func NewStorageFileCreator(store storage.ChunkStorage) *StorageFileCreator {
	return &StorageFileCreator{store: store}
}

// CreateFile stream the content into the backing storage
func (c *StorageFileCreator) CreateFile(meta FileMeta, content io.Reader) (*FileRecord, error) {
	id := uuid.New().String()
	name := id
	if ext := path.Ext(meta.Name); ext != "" {
		name += ext
	}
	filePath := path.Join("files", meta.OwnerID, name)
	n, err := c.store.SaveFile(filePath, content)
	if err != nil {
		// never leave a half written artifact reachable
		if rmErr := c.store.RemoveFile(filePath); rmErr != nil {
			return nil, fmt.Errorf("save file failed (%v), cleanup also failed: %w", err, rmErr)
		}
		return nil, err
	}
	return &FileRecord{
		ID:        id,
		Name:      meta.Name,
		OwnerID:   meta.OwnerID,
		ParentID:  meta.ParentID,
		Path:      meta.Path,
		MimeType:  meta.MimeType,
		Size:      n,
		CreatedAt: time.Now(),
	}, nil
}
