package model

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Upload session status values. A session starts as initialized, becomes
// ready_for_merge once every chunk index has been stored, passes through
// merging while the finalizer owns it, and ends in exactly one of the
// terminal states.
const (
	SessionStatusInitialized   = "initialized"
	SessionStatusReadyForMerge = "ready_for_merge"
	SessionStatusMerging       = "merging"
	SessionStatusCompleted     = "completed"
	SessionStatusFailed        = "failed"
	SessionStatusCancelled     = "cancelled"
	SessionStatusExpired       = "expired"
)

// UploadSession tracks one chunked file upload in progress.
type UploadSession struct {
	ID             string    `gorm:"column:id;size:64;primary_key" json:"id"`
	OwnerID        string    `gorm:"column:owner_id;size:64;not null;index" json:"owner_id"`
	FileName       string    `gorm:"column:file_name;size:255;not null" json:"file_name"`
	FileSize       int64     `gorm:"column:file_size;not null" json:"file_size"`
	MimeType       string    `gorm:"column:mime_type;size:128" json:"mime_type"`
	ParentID       string    `gorm:"column:parent_id;size:64" json:"parent_id"`
	Path           string    `gorm:"column:path;size:512" json:"path"`
	ChunkSize      int64     `gorm:"column:chunk_size;not null" json:"chunk_size"`
	ChunksUploaded int       `gorm:"column:chunks_uploaded;not null" json:"chunks_uploaded"`
	TotalChunks    int       `gorm:"column:total_chunks;not null" json:"total_chunks"`
	UploadedChunks string    `gorm:"column:uploaded_chunks;type:text" json:"uploaded_chunks"` // comma separated distinct chunk indices
	Status         string    `gorm:"column:status;size:20;not null;index" json:"status"`
	ResultFileID   string    `gorm:"column:result_file_id;size:64" json:"result_file_id"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
	ExpiresAt      time.Time `gorm:"column:expires_at;index" json:"expires_at"`
}

// TableName table name
func (u *UploadSession) TableName() string {
	return "upload_sessions"
}

// IsExpired whether the session TTL has passed at the given time.
func (u *UploadSession) IsExpired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// IsTerminal whether the session reached a terminal state.
func (u *UploadSession) IsTerminal() bool {
	switch u.Status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled, SessionStatusExpired:
		return true
	}
	return false
}

// Progress upload progress in percent, 0 while the chunk total is unknown.
func (u *UploadSession) Progress() float64 {
	if u.TotalChunks == 0 {
		return 0
	}
	return float64(u.ChunksUploaded) / float64(u.TotalChunks) * 100
}

// UploadedChunkIndexes parses the stored chunk index list.
func (u *UploadSession) UploadedChunkIndexes() []int {
	if u.UploadedChunks == "" {
		return []int{}
	}
	parts := strings.Split(u.UploadedChunks, ",")
	chunks := make([]int, 0, len(parts))
	for _, part := range parts {
		if idx, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			chunks = append(chunks, idx)
		}
	}
	return chunks
}

// AddUploadedChunkIndex records one stored chunk index. Duplicate indices are
// ignored so a retried chunk never double counts. Returns true when the index
// was new.
func (u *UploadSession) AddUploadedChunkIndex(index int) bool {
	chunks := u.UploadedChunkIndexes()
	for _, idx := range chunks {
		if idx == index {
			return false
		}
	}
	chunks = append(chunks, index)
	sort.Ints(chunks)
	strChunks := make([]string, len(chunks))
	for i, idx := range chunks {
		strChunks[i] = strconv.Itoa(idx)
	}
	u.UploadedChunks = strings.Join(strChunks, ",")
	u.ChunksUploaded = len(chunks)
	return true
}

// MissingChunkIndexes chunk indices not yet stored, relative to TotalChunks.
func (u *UploadSession) MissingChunkIndexes() []int {
	uploaded := make(map[int]bool)
	for _, idx := range u.UploadedChunkIndexes() {
		uploaded[idx] = true
	}
	missing := make([]int, 0)
	for i := 0; i < u.TotalChunks; i++ {
		if !uploaded[i] {
			missing = append(missing, i)
		}
	}
	return missing
}
