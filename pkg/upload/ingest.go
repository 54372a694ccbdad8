package upload

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
)

// IngestService validates and stores one incoming chunk and updates the
// session progress. Safe to call repeatedly for the same index, the chunk is
// overwritten and the progress counter does not move.
type IngestService struct {
	registry *Registry
	store    storage.ChunkStorage
}

// NewIngestService new ingest service
func NewIngestService(registry *Registry, store storage.ChunkStorage) *IngestService {
	return &IngestService{registry: registry, store: store}
}

// Ingest store the chunk at index for the session and record it. The reader
// supplies the raw chunk bytes. isLast mirrors what the client believes, it
// is informational only, completion is decided by the distinct index count.
func (s *IngestService) Ingest(sessionID, callerID string, index int, isLast bool, reader io.Reader) (Progress, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return Progress{}, err
	}
	if err := s.registry.checkWritable(session, callerID); err != nil {
		return Progress{}, err
	}
	if index < 0 || index >= countChunks(session.FileSize, session.ChunkSize) {
		return Progress{}, NewError(KindInvalidArgument,
			"chunk index %d out of range for session %s", index, sessionID)
	}

	if s.store.ChunkExists(sessionID, index) {
		logrus.Debugf("chunk %d for session %s already staged, overwriting", index, sessionID)
	}
	n, err := s.store.SaveChunk(sessionID, index, reader)
	if err != nil {
		return Progress{}, WrapError(KindTransientIO, err, "failed to save chunk")
	}
	logrus.Debugf("stored chunk %d for session %s, %d bytes", index, sessionID, n)

	progress, err := s.registry.RecordChunkStored(sessionID, callerID, index)
	if err != nil {
		return Progress{}, err
	}
	if isLast && progress.ChunksUploaded < progress.TotalChunks {
		logrus.Debugf("session %s got last chunk flag at %d/%d stored chunks",
			sessionID, progress.ChunksUploaded, progress.TotalChunks)
	}
	return progress, nil
}
