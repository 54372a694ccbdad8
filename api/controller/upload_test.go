package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbox/vaultbox/db/dao"
	"github.com/vaultbox/vaultbox/db/model"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
	"github.com/vaultbox/vaultbox/pkg/upload"
)

type envelope struct {
	Bean            json.RawMessage            `json:"bean"`
	Msg             string                     `json:"msg"`
	ValidationError map[string]json.RawMessage `json:"validation_error"`
}

type testServer struct {
	srv      *httptest.Server
	registry *upload.Registry
	store    storage.ChunkStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := storage.NewLocalStorage(t.TempDir())
	registry := upload.NewRegistry(dao.NewMemoryUploadSessionDao())
	files := upload.NewStorageFileCreator(store)
	c := &UploadController{
		Registry:  registry,
		Ingest:    upload.NewIngestService(registry, store),
		Finalizer: upload.NewFinalizer(registry, store, files),
		Files:     files,
		Store:     store,
	}

	r := chi.NewRouter()
	r.Route("/api/upload", func(r chi.Router) {
		r.Post("/", c.DirectUpload)
		r.Post("/init", c.InitUpload)
		r.Post("/chunks", c.UploadChunk)
		r.Post("/finalize", c.FinalizeUpload)
		r.Post("/cancel", c.CancelUpload)
		r.Get("/status/{sessionID}", c.GetUploadStatus)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, registry: registry, store: store}
}

func (ts *testServer) postJSON(t *testing.T, owner, path string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	return ts.do(t, req)
}

func (ts *testServer) get(t *testing.T, owner, path string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	return ts.do(t, req)
}

func (ts *testServer) postChunk(t *testing.T, owner, sessionID string, index int, isLast bool, chunk []byte) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("session_id", sessionID))
	require.NoError(t, mw.WriteField("chunk_index", fmt.Sprintf("%d", index)))
	if isLast {
		require.NoError(t, mw.WriteField("is_last_chunk", "1"))
	}
	fw, err := mw.CreateFormFile("chunk", fmt.Sprintf("%d.part", index))
	require.NoError(t, err)
	_, err = fw.Write(chunk)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/upload/chunks", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", owner)
	return ts.do(t, req)
}

func (ts *testServer) do(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	}
	return resp, env
}

func (ts *testServer) initSession(t *testing.T, owner string, size int64) (sessionID string, chunkSize int64) {
	t.Helper()
	resp, env := ts.postJSON(t, owner, "/api/upload/init", map[string]interface{}{
		"filename": "data.bin",
		"filesize": size,
		"mimetype": "application/octet-stream",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bean struct {
		SessionID string `json:"session_id"`
		ChunkSize int64  `json:"chunk_size"`
		ExpiresAt string `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(env.Bean, &bean))
	require.NotEmpty(t, bean.SessionID)
	require.NotEmpty(t, bean.ExpiresAt)
	return bean.SessionID, bean.ChunkSize
}

func TestInitRequiresOwnerIdentity(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.postJSON(t, "", "/api/upload/init", map[string]interface{}{
		"filename": "a.bin", "filesize": 10,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInitRejectsZeroSize(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.postJSON(t, "alice", "/api/upload/init", map[string]interface{}{
		"filename": "a.bin", "filesize": 0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestChunkedUploadFlow(t *testing.T) {
	ts := newTestServer(t)

	size := int64(upload.DefaultChunkSize + 1)
	content := make([]byte, size)
	rand.New(rand.NewSource(7)).Read(content)
	sessionID, chunkSize := ts.initSession(t, "alice", size)
	require.Equal(t, int64(upload.DefaultChunkSize), chunkSize)

	resp, env := ts.postChunk(t, "alice", sessionID, 0, false, content[:chunkSize])
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var progress struct {
		ChunksUploaded int `json:"chunks_uploaded"`
		TotalChunks    int `json:"total_chunks"`
	}
	require.NoError(t, json.Unmarshal(env.Bean, &progress))
	assert.Equal(t, 1, progress.ChunksUploaded)
	assert.Equal(t, 2, progress.TotalChunks)

	resp, env = ts.get(t, "alice", "/api/upload/status/"+sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status UploadStatusResponse
	require.NoError(t, json.Unmarshal(env.Bean, &status))
	assert.Equal(t, model.SessionStatusInitialized, status.Status)
	assert.Equal(t, []int{0}, status.UploadedChunks)
	assert.Equal(t, []int{1}, status.MissingChunks)

	resp, _ = ts.postChunk(t, "alice", sessionID, 1, true, content[chunkSize:])
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = ts.postJSON(t, "alice", "/api/upload/finalize", map[string]interface{}{
		"session_id": sessionID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var record upload.FileRecord
	require.NoError(t, json.Unmarshal(env.Bean, &record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, size, record.Size)

	resp, env = ts.get(t, "alice", "/api/upload/status/"+sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Bean, &status))
	assert.Equal(t, model.SessionStatusCompleted, status.Status)
}

func TestChunkForWrongOwnerIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	sessionID, _ := ts.initSession(t, "alice", 10)

	resp, _ := ts.postChunk(t, "mallory", sessionID, 0, true, []byte("0123456789"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStatusForWrongOwnerIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	sessionID, _ := ts.initSession(t, "alice", 10)

	resp, _ := ts.get(t, "mallory", "/api/upload/status/"+sessionID)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStatusUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.get(t, "alice", "/api/upload/status/no-such-session")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFinalizeIncompleteSessionConflicts(t *testing.T) {
	ts := newTestServer(t)
	size := int64(upload.DefaultChunkSize + 1)
	sessionID, chunkSize := ts.initSession(t, "alice", size)

	resp, _ := ts.postChunk(t, "alice", sessionID, 0, false, make([]byte, chunkSize))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.postJSON(t, "alice", "/api/upload/finalize", map[string]interface{}{
		"session_id": sessionID,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	sessionID, _ := ts.initSession(t, "alice", 10)

	for i := 0; i < 2; i++ {
		resp, _ := ts.postJSON(t, "alice", "/api/upload/cancel", map[string]interface{}{
			"session_id": sessionID,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	// cancelling a session that never existed still acknowledges
	resp, _ := ts.postJSON(t, "alice", "/api/upload/cancel", map[string]interface{}{
		"session_id": "no-such-session",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := ts.get(t, "alice", "/api/upload/status/"+sessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status UploadStatusResponse
	require.NoError(t, json.Unmarshal(env.Bean, &status))
	assert.Equal(t, model.SessionStatusCancelled, status.Status)
}

func TestChunkAfterCancelConflicts(t *testing.T) {
	ts := newTestServer(t)
	sessionID, _ := ts.initSession(t, "alice", 10)

	resp, _ := ts.postJSON(t, "alice", "/api/upload/cancel", map[string]interface{}{
		"session_id": sessionID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.postChunk(t, "alice", sessionID, 0, true, []byte("0123456789"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDirectUpload(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello vaultbox"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Owner-ID", "alice")

	resp, env := ts.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var record upload.FileRecord
	require.NoError(t, json.Unmarshal(env.Bean, &record))
	assert.Equal(t, "notes.txt", record.Name)
	assert.Equal(t, "alice", record.OwnerID)
	assert.Equal(t, int64(len("hello vaultbox")), record.Size)
}
