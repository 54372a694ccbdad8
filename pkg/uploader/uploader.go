package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vaultbox/vaultbox/pkg/upload"
)

// State per-file upload state.
type State string

// States of a queued file. paused is a side state of uploading, resume
// returns to uploading.
const (
	StateQueued    State = "queued"
	StateUploading State = "uploading"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Item one queued file. Created on enqueue, mutated by the driver while
// chunks complete or fail, terminal after completion, cancel or failure.
type Item struct {
	Info FileInfo
	// LocalPath path of the source file on disk
	LocalPath string

	mu        sync.Mutex
	state     State
	paused    bool
	bytesSent int64
	attempts  map[int]int
	err       error
	result    *upload.FileRecord
	sessionID string
	cancel    context.CancelFunc
}

// NewItem new queue entry for a local file.
func NewItem(localPath string, info FileInfo) *Item {
	return &Item{
		Info:      info,
		LocalPath: localPath,
		state:     StateQueued,
		attempts:  make(map[int]int),
	}
}

// State current state
func (i *Item) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.paused && i.state == StateUploading {
		return StatePaused
	}
	return i.state
}

// Pause suspend chunk sending before the next suspension point.
func (i *Item) Pause() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.paused = true
}

// Resume continue a paused upload.
func (i *Item) Resume() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.paused = false
}

// Cancel abort the upload, aborting any in-flight request.
func (i *Item) Cancel() {
	i.mu.Lock()
	cancel := i.cancel
	i.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Err the terminal error, nil unless failed.
func (i *Item) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Result the created file record, set on completion.
func (i *Item) Result() *upload.FileRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.result
}

// Attempts how many attempts the chunk at index took.
func (i *Item) Attempts(index int) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.attempts[index]
}

func (i *Item) isPaused() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.paused
}

func (i *Item) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

func (i *Item) setErr(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

func (i *Item) addBytes(n int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.bytesSent += n
}

func (i *Item) progress() (sent, total int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.bytesSent, i.Info.Size
}

func (i *Item) recordAttempt(index, attempt int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attempts[index] = attempt
}

// Options driver tuning knobs.
type Options struct {
	// MaxParallelFiles files uploading at the same time
	MaxParallelFiles int
	// MaxAttempts attempts per chunk before the failure becomes permanent
	MaxAttempts int
	// BackoffBase first retry delay, doubled per attempt
	BackoffBase time.Duration
	// DirectThreshold files at or below this size upload in one request
	DirectThreshold int64
	// ProgressInterval minimum delay between progress reports per file
	ProgressInterval time.Duration
}

// DefaultOptions the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxParallelFiles: 3,
		MaxAttempts:      3,
		BackoffBase:      time.Second,
		DirectThreshold:  upload.DirectUploadThreshold,
		ProgressInterval: 250 * time.Millisecond,
	}
}

// Uploader drives queued files to the upload api. Files upload in parallel
// up to MaxParallelFiles, chunks within one file go sequentially in index
// order.
type Uploader struct {
	client APIClient
	sink   ProgressSink
	opts   Options

	mu    sync.Mutex
	queue []*Item
}

// New new uploader
func New(client APIClient, sink ProgressSink, opts Options) *Uploader {
	if opts.MaxParallelFiles <= 0 {
		opts.MaxParallelFiles = 3
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.DirectThreshold <= 0 {
		opts.DirectThreshold = upload.DirectUploadThreshold
	}
	return &Uploader{client: client, sink: sink, opts: opts}
}

// Enqueue add a file to the queue.
func (u *Uploader) Enqueue(item *Item) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queue = append(u.queue, item)
}

// Run upload every queued file, blocking until all of them are terminal or
// the context is cancelled. A permanent failure of one file never blocks the
// files queued after it.
func (u *Uploader) Run(ctx context.Context) {
	u.mu.Lock()
	items := make([]*Item, len(u.queue))
	copy(items, u.queue)
	u.queue = u.queue[:0]
	u.mu.Unlock()

	sem := make(chan struct{}, u.opts.MaxParallelFiles)
	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			u.uploadFile(ctx, item)
		}()
	}
	wg.Wait()
}

func (u *Uploader) uploadFile(ctx context.Context, item *Item) {
	itemCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	item.mu.Lock()
	item.cancel = cancel
	item.mu.Unlock()

	rep := newReporter(u.sink, u.opts.ProgressInterval)
	rep.start()
	item.setState(StateUploading)
	rep.report(item, true)

	var err error
	if useChunkedUpload(item.Info.Size, u.opts.DirectThreshold) {
		err = u.uploadChunked(itemCtx, item, rep)
	} else {
		err = u.uploadDirect(itemCtx, item, rep)
	}

	switch {
	case err == nil:
		item.setState(StateCompleted)
	case itemCtx.Err() != nil:
		item.setState(StateCancelled)
	default:
		item.setErr(err)
		item.setState(StateFailed)
		logrus.Errorf("upload of %s failed: %v", item.Info.Name, err)
	}
	rep.report(item, true)
}

// useChunkedUpload the strategy choice, pure in the file size.
func useChunkedUpload(size, threshold int64) bool {
	return size > threshold
}

func (u *Uploader) uploadDirect(ctx context.Context, item *Item, rep *reporter) error {
	file, err := os.Open(item.LocalPath)
	if err != nil {
		return err
	}
	defer file.Close()

	record, err := u.client.UploadDirect(ctx, item.Info, file)
	if err != nil {
		return err
	}
	item.addBytes(item.Info.Size)
	item.mu.Lock()
	item.result = record
	item.mu.Unlock()
	return nil
}

func (u *Uploader) uploadChunked(ctx context.Context, item *Item, rep *reporter) error {
	file, err := os.Open(item.LocalPath)
	if err != nil {
		return err
	}
	defer file.Close()

	init, err := u.client.InitSession(ctx, item.Info)
	if err != nil {
		return fmt.Errorf("failed to init upload session: %w", err)
	}
	item.mu.Lock()
	item.sessionID = init.SessionID
	item.mu.Unlock()

	chunkSize := init.ChunkSize
	if chunkSize <= 0 {
		chunkSize = upload.DefaultChunkSize
	}
	totalChunks := int((item.Info.Size + chunkSize - 1) / chunkSize)
	buf := make([]byte, chunkSize)

	for index := 0; index < totalChunks; index++ {
		if err := u.waitWhilePaused(ctx, item); err != nil {
			u.cancelSession(init.SessionID)
			return err
		}
		n, err := io.ReadFull(file, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			err = nil
		}
		if err != nil {
			u.cancelSession(init.SessionID)
			return fmt.Errorf("failed to read chunk %d: %w", index, err)
		}
		isLast := index == totalChunks-1

		if err := u.sendChunkWithRetry(ctx, item, init.SessionID, index, isLast, buf[:n]); err != nil {
			u.cancelSession(init.SessionID)
			return err
		}
		item.addBytes(int64(n))
		rep.report(item, false)
	}

	if err := u.waitWhilePaused(ctx, item); err != nil {
		u.cancelSession(init.SessionID)
		return err
	}
	record, err := u.client.Finalize(ctx, init.SessionID, item.Info)
	if err != nil {
		// no partial-merge retry, the server purged the chunks
		return fmt.Errorf("failed to finalize upload: %w", err)
	}
	item.mu.Lock()
	item.result = record
	item.mu.Unlock()
	return nil
}

// sendChunkWithRetry one chunk, up to MaxAttempts with exponential backoff
// on transient failures. Pause and cancel are re-checked after every await
// and before every backoff sleep.
func (u *Uploader) sendChunkWithRetry(ctx context.Context, item *Item, sessionID string, index int, isLast bool, chunk []byte) error {
	var lastErr error
	for attempt := 1; attempt <= u.opts.MaxAttempts; attempt++ {
		item.recordAttempt(index, attempt)
		_, err := u.client.UploadChunk(ctx, sessionID, index, isLast, chunk)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTransient(err) {
			return fmt.Errorf("chunk %d rejected: %w", index, err)
		}
		if attempt < u.opts.MaxAttempts {
			delay := u.opts.BackoffBase << uint(attempt-1)
			logrus.Debugf("chunk %d of %s failed (attempt %d), retrying in %s: %v",
				index, item.Info.Name, attempt, delay, err)
			if err := u.sleepWithChecks(ctx, item, delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("chunk %d failed after %d attempts: %w", index, u.opts.MaxAttempts, lastErr)
}

// waitWhilePaused block while the item is paused, aborting on cancel.
func (u *Uploader) waitWhilePaused(ctx context.Context, item *Item) error {
	for item.isPaused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return ctx.Err()
}

// sleepWithChecks a backoff sleep that reacts promptly to pause and cancel.
func (u *Uploader) sleepWithChecks(ctx context.Context, item *Item, delay time.Duration) error {
	deadline := time.Now().Add(delay)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
		if err := u.waitWhilePaused(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// cancelSession best effort server side cancel so staged chunks are purged
// now instead of by the janitor.
func (u *Uploader) cancelSession(sessionID string) {
	if sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := u.client.Cancel(ctx, sessionID); err != nil {
		logrus.Warnf("failed to cancel upload session %s: %v", sessionID, err)
	}
}
