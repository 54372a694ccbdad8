package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/api/metric"
	"github.com/vaultbox/vaultbox/pkg/component/storage"
	"github.com/vaultbox/vaultbox/pkg/upload"
	httputil "github.com/vaultbox/vaultbox/pkg/util/http"
)

// MaxChunkPayload upper bound for a single chunk request body. The chunk
// size policy never hands out chunks this large.
const MaxChunkPayload = 64 * 1024 * 1024

// UploadController chunked upload HTTP boundary.
type UploadController struct {
	Registry  *upload.Registry
	Ingest    *upload.IngestService
	Finalizer *upload.Finalizer
	Files     upload.FileCreator
	Store     storage.ChunkStorage
}

// ownerID resolves the caller identity. Authentication happens upstream,
// the gateway passes the resolved identity through this header.
func ownerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Owner-ID"))
}

func addCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Add("Access-Control-Allow-Origin", origin)
	w.Header().Add("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	w.Header().Add("Access-Control-Allow-Credentials", "true")
	w.Header().Add("Access-Control-Allow-Headers", "x-requested-with,Content-Type,X-Owner-ID")
}

// returnUploadError maps the upload error taxonomy onto status codes.
func returnUploadError(r *http.Request, w http.ResponseWriter, err error) {
	switch upload.KindOf(err) {
	case upload.KindForbidden:
		httputil.ReturnError(r, w, http.StatusForbidden, err.Error())
	case upload.KindNotFound:
		httputil.ReturnError(r, w, http.StatusNotFound, err.Error())
	case upload.KindExpired, upload.KindInvalidState:
		httputil.ReturnError(r, w, http.StatusConflict, err.Error())
	case upload.KindInvalidArgument:
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, err.Error())
	case upload.KindPermanentReject:
		httputil.ReturnError(r, w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		httputil.ReturnError(r, w, http.StatusInternalServerError, err.Error())
	}
}

// InitUpload initialize an upload session
// POST /api/upload/init
func (c *UploadController) InitUpload(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	owner := ownerID(r)
	if owner == "" {
		httputil.ReturnError(r, w, http.StatusForbidden, "caller identity is required")
		return
	}

	var req struct {
		FileName string `json:"filename"`
		FileSize int64  `json:"filesize"`
		MimeType string `json:"mimetype"`
		ParentID string `json:"parent_id"`
		Path     string `json:"path"`
	}
	if !httputil.ValidatorRequestStructAndErrorResponse(r, w, &req, nil) {
		return
	}

	session, err := c.Registry.Create(owner, req.FileName, req.FileSize, req.MimeType, req.ParentID, req.Path)
	if err != nil {
		returnUploadError(r, w, err)
		return
	}
	metric.SessionsCreated.Inc()

	httputil.ReturnSuccess(r, w, map[string]interface{}{
		"session_id": session.ID,
		"chunk_size": session.ChunkSize,
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
}

// UploadChunk store one chunk
// POST /api/upload/chunks
func (c *UploadController) UploadChunk(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	owner := ownerID(r)
	if owner == "" {
		httputil.ReturnError(r, w, http.StatusForbidden, "caller identity is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxChunkPayload+64*1024)
	sessionID := r.FormValue("session_id")
	chunkIndexStr := r.FormValue("chunk_index")
	if sessionID == "" || chunkIndexStr == "" {
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "session_id and chunk_index are required")
		return
	}
	chunkIndex, err := strconv.Atoi(chunkIndexStr)
	if err != nil {
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "invalid chunk_index")
		return
	}
	isLast := r.FormValue("is_last_chunk") == "1" || r.FormValue("is_last_chunk") == "true"

	reader, header, err := r.FormFile("chunk")
	if err != nil {
		logrus.Errorf("failed to parse chunk file: %v", err)
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "failed to parse chunk file")
		return
	}
	defer reader.Close()
	if header.Size > MaxChunkPayload {
		httputil.ReturnError(r, w, http.StatusRequestEntityTooLarge, "chunk payload too large")
		return
	}
	logrus.Debugf("receiving chunk %d for session %s, size %d", chunkIndex, sessionID, header.Size)

	progress, err := c.Ingest.Ingest(sessionID, owner, chunkIndex, isLast, reader)
	if err != nil {
		returnUploadError(r, w, err)
		return
	}
	metric.ChunksStored.Inc()

	httputil.ReturnSuccess(r, w, map[string]interface{}{
		"session_id":      sessionID,
		"chunk_index":     chunkIndex,
		"received_size":   header.Size,
		"chunks_uploaded": progress.ChunksUploaded,
		"total_chunks":    progress.TotalChunks,
	})
}

// FinalizeUpload merge all chunks into the final file
// POST /api/upload/finalize
func (c *UploadController) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	owner := ownerID(r)
	if owner == "" {
		httputil.ReturnError(r, w, http.StatusForbidden, "caller identity is required")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if !httputil.ValidatorRequestStructAndErrorResponse(r, w, &req, nil) {
		return
	}
	if req.SessionID == "" {
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "session_id is required")
		return
	}

	record, err := c.Finalizer.Finalize(req.SessionID, owner)
	if err != nil {
		if kind := upload.KindOf(err); kind == upload.KindCorrupt || kind == upload.KindTransientIO {
			metric.SessionsFailed.Inc()
		}
		returnUploadError(r, w, err)
		return
	}
	metric.SessionsCompleted.Inc()
	logrus.Infof("upload completed for session %s, file %s", req.SessionID, record.ID)
	httputil.ReturnSuccess(r, w, record)
}

// CancelUpload cancel a session and purge its chunks, idempotent
// POST /api/upload/cancel
func (c *UploadController) CancelUpload(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	owner := ownerID(r)
	if owner == "" {
		httputil.ReturnError(r, w, http.StatusForbidden, "caller identity is required")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if !httputil.ValidatorRequestStructAndErrorResponse(r, w, &req, nil) {
		return
	}

	session, err := c.Registry.Get(req.SessionID)
	if err != nil {
		if upload.IsKind(err, upload.KindNotFound) {
			// already gone, acknowledge anyway
			httputil.ReturnSuccess(r, w, map[string]string{"message": "upload cancelled"})
			return
		}
		returnUploadError(r, w, err)
		return
	}
	if session.OwnerID == owner {
		if err := c.Registry.MarkCancelled(req.SessionID); err != nil {
			returnUploadError(r, w, err)
			return
		}
		if err := c.Store.CleanupChunks(req.SessionID); err != nil {
			logrus.Warnf("failed to cleanup chunks of cancelled session %s: %v", req.SessionID, err)
		}
		metric.SessionsCancelled.Inc()
		logrus.Infof("cancelled upload session %s", req.SessionID)
	}
	httputil.ReturnSuccess(r, w, map[string]string{"message": "upload cancelled"})
}

// GetUploadStatus report session progress
// GET /api/upload/status/{sessionID}
func (c *UploadController) GetUploadStatus(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	owner := ownerID(r)
	if owner == "" {
		httputil.ReturnError(r, w, http.StatusForbidden, "caller identity is required")
		return
	}
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "sessionID is required")
		return
	}

	session, err := c.Registry.Get(sessionID)
	if err != nil {
		returnUploadError(r, w, err)
		return
	}
	if session.OwnerID != owner {
		httputil.ReturnError(r, w, http.StatusForbidden, "session does not belong to the caller")
		return
	}

	httputil.ReturnSuccess(r, w, &UploadStatusResponse{
		SessionID:      session.ID,
		FileName:       session.FileName,
		FileSize:       session.FileSize,
		ChunkSize:      session.ChunkSize,
		TotalChunks:    session.TotalChunks,
		UploadedChunks: session.UploadedChunkIndexes(),
		MissingChunks:  session.MissingChunkIndexes(),
		Progress:       session.Progress(),
		Status:         session.Status,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      session.UpdatedAt,
		ExpiresAt:      session.ExpiresAt,
	})
}

// DirectUpload single request upload for small files
// POST /api/upload
func (c *UploadController) DirectUpload(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	owner := ownerID(r)
	if owner == "" {
		httputil.ReturnError(r, w, http.StatusForbidden, "caller identity is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, upload.DirectUploadThreshold+64*1024)
	reader, header, err := r.FormFile("file")
	if err != nil {
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "failed to parse file")
		return
	}
	defer reader.Close()
	if header.Size > upload.DirectUploadThreshold {
		httputil.ReturnError(r, w, http.StatusRequestEntityTooLarge,
			"file too large for direct upload, use chunked upload")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	if name == "" {
		httputil.ReturnError(r, w, http.StatusUnprocessableEntity, "file name is required")
		return
	}

	record, err := c.Files.CreateFile(upload.FileMeta{
		Name:     name,
		OwnerID:  owner,
		ParentID: r.FormValue("parent_id"),
		Path:     r.FormValue("path"),
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
	}, reader)
	if err != nil {
		httputil.ReturnError(r, w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.ReturnSuccess(r, w, record)
}

// HandleOptions CORS preflight
func (c *UploadController) HandleOptions(w http.ResponseWriter, r *http.Request) {
	addCORSHeaders(w, r)
	w.Header().Set("Access-Control-Max-Age", "3600")
	w.WriteHeader(http.StatusOK)
}

// UploadStatusResponse upload status payload
type UploadStatusResponse struct {
	SessionID      string    `json:"session_id"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	ChunkSize      int64     `json:"chunk_size"`
	TotalChunks    int       `json:"total_chunks"`
	UploadedChunks []int     `json:"uploaded_chunks"`
	MissingChunks  []int     `json:"missing_chunks"`
	Progress       float64   `json:"progress"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}
