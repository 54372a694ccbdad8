package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/db/dao"
	"github.com/vaultbox/vaultbox/db/model"
)

// SessionTTL fixed, absolute session lifetime. Activity never extends it.
const SessionTTL = 24 * time.Hour

// Clock injectable time source
type Clock func() time.Time

// Progress server side chunk progress of one session.
type Progress struct {
	ChunksUploaded int `json:"chunks_uploaded"`
	TotalChunks    int `json:"total_chunks"`
}

// Registry durable record of in-progress uploads, the single source of truth
// for server side progress. Operations on one session are serialized through
// a per-session lock so concurrent chunk arrivals keep the counters
// consistent.
type Registry struct {
	store dao.UploadSessionDao
	now   Clock
	ttl   time.Duration

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewRegistry new registry over the given session store
func NewRegistry(store dao.UploadSessionDao) *Registry {
	return &Registry{
		store: store,
		now:   time.Now,
		ttl:   SessionTTL,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetClock override the time source, used by tests.
func (r *Registry) SetClock(now Clock) {
	r.now = now
}

func (r *Registry) sessionLock(sessionID string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[sessionID] = l
	}
	return l
}

func (r *Registry) releaseLock(sessionID string) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	delete(r.locks, sessionID)
}

// Create allocate a new upload session.
func (r *Registry) Create(ownerID, fileName string, fileSize int64, mimeType, parentID, path string) (*model.UploadSession, error) {
	if fileSize <= 0 {
		return nil, NewError(KindInvalidArgument, "file size must be greater than zero, got %d", fileSize)
	}
	if fileName == "" {
		return nil, NewError(KindInvalidArgument, "file name is required")
	}
	if ownerID == "" {
		return nil, NewError(KindInvalidArgument, "owner id is required")
	}
	now := r.now()
	session := &model.UploadSession{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		FileName:       fileName,
		FileSize:       fileSize,
		MimeType:       mimeType,
		ParentID:       parentID,
		Path:           path,
		ChunkSize:      ChunkSizeFor(fileSize),
		ChunksUploaded: 0,
		TotalChunks:    0,
		Status:         model.SessionStatusInitialized,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(r.ttl),
	}
	if err := r.store.AddModel(session); err != nil {
		return nil, WrapError(KindTransientIO, err, "failed to create session")
	}
	logrus.Infof("created upload session %s for owner %s, file %s (%d bytes, chunk size %d)",
		session.ID, ownerID, fileName, fileSize, session.ChunkSize)
	return session, nil
}

// Get load a session by id.
func (r *Registry) Get(sessionID string) (*model.UploadSession, error) {
	session, err := r.store.GetByID(sessionID)
	if err != nil {
		if err == dao.ErrSessionNotFound {
			return nil, NewError(KindNotFound, "upload session %s not found", sessionID)
		}
		return nil, WrapError(KindTransientIO, err, "failed to load session")
	}
	return session, nil
}

// checkWritable shared guards for chunk writes
func (r *Registry) checkWritable(session *model.UploadSession, ownerID string) error {
	if session.OwnerID != ownerID {
		return NewError(KindForbidden, "session %s does not belong to the caller", session.ID)
	}
	if session.IsExpired(r.now()) {
		return NewError(KindExpired, "upload session %s has expired", session.ID)
	}
	if session.Status == model.SessionStatusMerging {
		return NewError(KindInvalidState, "session %s is merging, chunks are frozen", session.ID)
	}
	if session.IsTerminal() {
		return NewError(KindInvalidState, "session %s is %s, cannot upload", session.ID, session.Status)
	}
	return nil
}

// BeginMerge claim a session for merging. The check and the transition to
// merging happen under the per-session lock, so of two concurrent finalize
// calls exactly one gets the session and the other sees invalid state. The
// claim also freezes chunk writes, a re-uploaded chunk must not change bytes
// the merge is streaming.
func (r *Registry) BeginMerge(sessionID, callerID string) (*model.UploadSession, error) {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != callerID {
		return nil, NewError(KindForbidden, "session %s does not belong to the caller", sessionID)
	}
	if session.IsExpired(r.now()) {
		return nil, NewError(KindExpired, "upload session %s has expired", sessionID)
	}
	if session.Status != model.SessionStatusReadyForMerge {
		return nil, NewError(KindInvalidState,
			"session %s is %s, not ready for merge", sessionID, session.Status)
	}
	session.Status = model.SessionStatusMerging
	session.UpdatedAt = r.now()
	if err := r.store.UpdateModel(session); err != nil {
		return nil, WrapError(KindTransientIO, err, "failed to update session")
	}
	logrus.Debugf("session %s claimed for merge", sessionID)
	return session, nil
}

// RecordChunkStored record that the chunk at index was stored. The first call
// fixes TotalChunks, afterwards it never changes. Re-recording an index is a
// no-op for the progress counters, the registry tracks distinct indices, not
// raw store calls.
func (r *Registry) RecordChunkStored(sessionID, ownerID string, index int) (Progress, error) {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := r.Get(sessionID)
	if err != nil {
		return Progress{}, err
	}
	if err := r.checkWritable(session, ownerID); err != nil {
		return Progress{}, err
	}
	if session.TotalChunks == 0 {
		session.TotalChunks = countChunks(session.FileSize, session.ChunkSize)
	}
	if index < 0 || index >= session.TotalChunks {
		return Progress{}, NewError(KindInvalidArgument,
			"chunk index %d out of range, session has %d chunks", index, session.TotalChunks)
	}
	session.AddUploadedChunkIndex(index)
	if session.ChunksUploaded >= session.TotalChunks && session.Status == model.SessionStatusInitialized {
		session.Status = model.SessionStatusReadyForMerge
		logrus.Debugf("session %s has all %d chunks, ready for merge", session.ID, session.TotalChunks)
	}
	session.UpdatedAt = r.now()
	if err := r.store.UpdateModel(session); err != nil {
		return Progress{}, WrapError(KindTransientIO, err, "failed to update session")
	}
	return Progress{ChunksUploaded: session.ChunksUploaded, TotalChunks: session.TotalChunks}, nil
}

// MarkCompleted transition to completed and attach the produced file id.
// A no-op when the session is already terminal, completion may race the
// janitor.
func (r *Registry) MarkCompleted(sessionID, fileID string) error {
	return r.markTerminal(sessionID, model.SessionStatusCompleted, fileID)
}

// MarkFailed transition to failed, no-op on terminal sessions.
func (r *Registry) MarkFailed(sessionID string) error {
	return r.markTerminal(sessionID, model.SessionStatusFailed, "")
}

// MarkCancelled transition to cancelled, no-op on terminal sessions.
func (r *Registry) MarkCancelled(sessionID string) error {
	return r.markTerminal(sessionID, model.SessionStatusCancelled, "")
}

// MarkExpired transition to expired, no-op on terminal sessions.
func (r *Registry) MarkExpired(sessionID string) error {
	return r.markTerminal(sessionID, model.SessionStatusExpired, "")
}

func (r *Registry) markTerminal(sessionID, status, fileID string) error {
	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := r.Get(sessionID)
	if err != nil {
		return err
	}
	if session.IsTerminal() {
		return nil
	}
	session.Status = status
	if fileID != "" {
		session.ResultFileID = fileID
	}
	session.UpdatedAt = r.now()
	if err := r.store.UpdateModel(session); err != nil {
		return WrapError(KindTransientIO, err, "failed to update session")
	}
	r.releaseLock(sessionID)
	logrus.Infof("upload session %s marked %s", sessionID, status)
	return nil
}

// DeleteSession drop the session row entirely. The janitor uses this for
// sessions already marked expired on an earlier sweep.
func (r *Registry) DeleteSession(sessionID string) error {
	if err := r.store.DeleteByID(sessionID); err != nil {
		return WrapError(KindTransientIO, err, "failed to delete session")
	}
	r.releaseLock(sessionID)
	logrus.Infof("upload session %s deleted", sessionID)
	return nil
}

// ListExpired sessions the janitor should purge.
func (r *Registry) ListExpired() ([]*model.UploadSession, error) {
	sessions, err := r.store.ListExpired(r.now())
	if err != nil {
		return nil, WrapError(KindTransientIO, err, "failed to list expired sessions")
	}
	return sessions, nil
}
