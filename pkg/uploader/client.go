package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/vaultbox/vaultbox/pkg/upload"
)

// FileInfo what the driver knows about one queued file.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
	ParentID string
	Path     string
}

// InitResponse init endpoint payload
type InitResponse struct {
	SessionID string `json:"session_id"`
	ChunkSize int64  `json:"chunk_size"`
	ExpiresAt string `json:"expires_at"`
}

// ChunkProgress chunk endpoint payload
type ChunkProgress struct {
	ChunksUploaded int `json:"chunks_uploaded"`
	TotalChunks    int `json:"total_chunks"`
}

// APIClient the server boundary the driver talks to.
type APIClient interface {
	InitSession(ctx context.Context, info FileInfo) (*InitResponse, error)
	UploadChunk(ctx context.Context, sessionID string, index int, isLast bool, chunk []byte) (*ChunkProgress, error)
	Finalize(ctx context.Context, sessionID string, info FileInfo) (*upload.FileRecord, error)
	Cancel(ctx context.Context, sessionID string) error
	UploadDirect(ctx context.Context, info FileInfo, content io.Reader) (*upload.FileRecord, error)
}

// APIError an error response from the upload api.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upload api error %d: %s", e.StatusCode, e.Message)
}

// IsTransient whether the error is worth retrying. Server errors and network
// failures are transient, everything the server rejected deliberately is not.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// no api response at all, assume a network hiccup
	return true
}

// Client resty backed api client.
type Client struct {
	rest *resty.Client
}

// NewClient new client for the upload api at baseURL acting as ownerID.
func NewClient(baseURL, ownerID string) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-Owner-ID", ownerID).
		SetTimeout(5 * time.Minute)
	return &Client{rest: rest}
}

// envelope the server response envelope
type envelope struct {
	Bean            json.RawMessage        `json:"bean"`
	Msg             string                 `json:"msg"`
	ValidationError map[string]interface{} `json:"validation_error"`
}

func decodeResponse(resp *resty.Response, out interface{}) error {
	if resp.IsError() {
		var env envelope
		msg := resp.Status()
		if err := json.Unmarshal(resp.Body(), &env); err == nil {
			if env.Msg != "" {
				msg = env.Msg
			} else if len(env.ValidationError) > 0 {
				msg = fmt.Sprintf("validation failed: %v", env.ValidationError)
			}
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Bean) == 0 {
		return nil
	}
	return json.Unmarshal(env.Bean, out)
}

// InitSession open an upload session
func (c *Client) InitSession(ctx context.Context, info FileInfo) (*InitResponse, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"filename":  info.Name,
			"filesize":  info.Size,
			"mimetype":  info.MimeType,
			"parent_id": info.ParentID,
			"path":      info.Path,
		}).
		Post("/api/upload/init")
	if err != nil {
		return nil, err
	}
	var out InitResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadChunk send one chunk
func (c *Client) UploadChunk(ctx context.Context, sessionID string, index int, isLast bool, chunk []byte) (*ChunkProgress, error) {
	lastFlag := "0"
	if isLast {
		lastFlag = "1"
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"session_id":    sessionID,
			"chunk_index":   strconv.Itoa(index),
			"is_last_chunk": lastFlag,
		}).
		SetFileReader("chunk", fmt.Sprintf("%d.part", index), bytes.NewReader(chunk)).
		Post("/api/upload/chunks")
	if err != nil {
		return nil, err
	}
	var out ChunkProgress
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Finalize merge the session into the final file
func (c *Client) Finalize(ctx context.Context, sessionID string, info FileInfo) (*upload.FileRecord, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"session_id": sessionID,
			"filename":   info.Name,
			"parent_id":  info.ParentID,
			"path":       info.Path,
		}).
		Post("/api/upload/finalize")
	if err != nil {
		return nil, err
	}
	var out upload.FileRecord
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel cancel the session server side
func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"session_id": sessionID}).
		Post("/api/upload/cancel")
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// UploadDirect single request upload for small files
func (c *Client) UploadDirect(ctx context.Context, info FileInfo, content io.Reader) (*upload.FileRecord, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"name":      info.Name,
			"parent_id": info.ParentID,
			"path":      info.Path,
		}).
		SetFileReader("file", info.Name, content).
		Post("/api/upload")
	if err != nil {
		return nil, err
	}
	var out upload.FileRecord
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
