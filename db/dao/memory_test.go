package dao

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbox/vaultbox/db/model"
)

func TestMemoryDaoRoundTrip(t *testing.T) {
	d := NewMemoryUploadSessionDao()
	now := time.Now()

	session := &model.UploadSession{
		ID:        "sess-1",
		OwnerID:   "alice",
		FileName:  "data.bin",
		Status:    model.SessionStatusInitialized,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, d.AddModel(session))

	got, err := d.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)

	// the dao hands out copies, mutating one must not leak into the store
	got.Status = model.SessionStatusFailed
	again, err := d.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInitialized, again.Status)

	got.Status = model.SessionStatusReadyForMerge
	require.NoError(t, d.UpdateModel(got))
	again, err = d.GetByID("sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusReadyForMerge, again.Status)

	require.NoError(t, d.DeleteByID("sess-1"))
	_, err = d.GetByID("sess-1")
	assert.Equal(t, ErrSessionNotFound, err)
}

func TestMemoryDaoListExpired(t *testing.T) {
	d := NewMemoryUploadSessionDao()
	now := time.Now()

	add := func(id, status string, expiresAt time.Time) {
		require.NoError(t, d.AddModel(&model.UploadSession{ID: id, Status: status, ExpiresAt: expiresAt}))
	}
	add("stale", model.SessionStatusInitialized, now.Add(-time.Hour))
	add("done", model.SessionStatusCompleted, now.Add(-time.Hour))
	add("already", model.SessionStatusExpired, now.Add(-time.Hour))
	add("fresh", model.SessionStatusInitialized, now.Add(time.Hour))

	sessions, err := d.ListExpired(now)
	require.NoError(t, err)
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	// already-expired rows come back too, the janitor deletes them on the
	// sweep after the one that marked them
	assert.ElementsMatch(t, []string{"stale", "already"}, ids)
}
