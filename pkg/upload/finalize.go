package upload

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/db/model"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
)

// Finalizer merges all stored chunks of a session in index order into one
// file artifact and hands it to the file creation collaborator. Merging
// streams chunk by chunk, the whole file is never held in memory.
type Finalizer struct {
	registry *Registry
	store    storage.ChunkStorage
	files    FileCreator
}

// NewFinalizer new finalizer
func NewFinalizer(registry *Registry, store storage.ChunkStorage, files FileCreator) *Finalizer {
	return &Finalizer{registry: registry, store: store, files: files}
}

// Finalize merge the session chunks and create the final file. Only sessions
// in ready_for_merge are accepted, and the claim through BeginMerge is
// atomic, a concurrent finalize of the same session loses with invalid
// state instead of producing a second artifact. Any failure after the claim
// marks the session failed and purges the staged chunks, there is no
// partial-merge retry path.
func (f *Finalizer) Finalize(sessionID, callerID string) (*FileRecord, error) {
	session, err := f.registry.BeginMerge(sessionID, callerID)
	if err != nil {
		return nil, err
	}

	record, err := f.merge(session)
	if err != nil {
		logrus.Errorf("finalize of session %s failed: %v", sessionID, err)
		if markErr := f.registry.MarkFailed(sessionID); markErr != nil {
			logrus.Errorf("failed to mark session %s failed: %v", sessionID, markErr)
		}
		if purgeErr := f.store.CleanupChunks(sessionID); purgeErr != nil {
			logrus.Errorf("failed to purge chunks of session %s: %v", sessionID, purgeErr)
		}
		return nil, err
	}

	if err := f.registry.MarkCompleted(sessionID, record.ID); err != nil {
		logrus.Errorf("failed to mark session %s completed: %v", sessionID, err)
	}
	if err := f.store.CleanupChunks(sessionID); err != nil {
		logrus.Warnf("failed to cleanup chunks of session %s: %v", sessionID, err)
	}
	logrus.Infof("upload session %s finalized into file %s (%d bytes)", sessionID, record.ID, record.Size)
	return record, nil
}

func (f *Finalizer) merge(session *model.UploadSession) (*FileRecord, error) {
	chunks, err := f.store.ListChunks(session.ID)
	if err != nil {
		return nil, WrapError(KindTransientIO, err, "failed to list chunks")
	}
	if err := checkChunkSequence(chunks, session.TotalChunks); err != nil {
		return nil, err
	}

	logrus.Infof("merging %d chunks for session %s", session.TotalChunks, session.ID)
	reader := newChunkReader(chunks)
	defer reader.Close()

	meta := FileMeta{
		Name:     session.FileName,
		OwnerID:  session.OwnerID,
		ParentID: session.ParentID,
		Path:     session.Path,
		MimeType: session.MimeType,
		Size:     session.FileSize,
	}
	record, err := f.files.CreateFile(meta, reader)
	if err != nil {
		return nil, WrapError(KindTransientIO, err, "failed to create file")
	}
	return record, nil
}

// checkChunkSequence the stored chunks must be exactly [0, total) with no
// gaps and no duplicates. ListChunks returns them sorted by numeric index.
func checkChunkSequence(chunks []storage.Chunk, total int) error {
	if len(chunks) != total {
		return NewError(KindCorrupt, "chunk count mismatch, have %d want %d", len(chunks), total)
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			return NewError(KindCorrupt, "chunk sequence broken at position %d, found index %d", i, chunk.Index)
		}
	}
	return nil
}

// chunkReader concatenates chunk contents in order, opening one chunk at a
// time so memory stays bounded by the copy buffer.
type chunkReader struct {
	chunks  []storage.Chunk
	pos     int
	current io.ReadCloser
}

func newChunkReader(chunks []storage.Chunk) *chunkReader {
	return &chunkReader{chunks: chunks}
}

func (c *chunkReader) Read(p []byte) (int, error) {
	for {
		if c.current == nil {
			if c.pos >= len(c.chunks) {
				return 0, io.EOF
			}
			rc, err := c.chunks[c.pos].Open()
			if err != nil {
				return 0, err
			}
			c.current = rc
		}
		n, err := c.current.Read(p)
		if err == io.EOF {
			c.current.Close()
			c.current = nil
			c.pos++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *chunkReader) Close() error {
	if c.current != nil {
		err := c.current.Close()
		c.current = nil
		return err
	}
	return nil
}
