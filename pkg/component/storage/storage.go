package storage

import (
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
)

// Config storage component config
type Config struct {
	// StorageType local or s3
	StorageType string
	// LocalBasePath base dir for the local storage type
	LocalBasePath string

	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Chunk one stored chunk of an upload session. Open returns the chunk bytes,
// the caller closes the reader.
type Chunk struct {
	Index int
	Size  int64
	Open  func() (io.ReadCloser, error)
}

// ChunkStorage persists raw chunk bytes keyed by (session, index) in a
// staging area isolated per session, plus the final merged artifacts.
type ChunkStorage interface {
	// SaveChunk writes or overwrites the chunk at the given index, creating
	// the session staging area on first write. Returns bytes written.
	SaveChunk(sessionID string, index int, reader io.Reader) (int64, error)
	// ChunkExists whether a chunk is already stored for the index.
	ChunkExists(sessionID string, index int) bool
	// ListChunks returns the session chunks sorted ascending by numeric
	// index. Index 10 sorts after 9, never between 1 and 2.
	ListChunks(sessionID string) ([]Chunk, error)
	// CleanupChunks removes all chunks and the staging area of a session.
	// Calling it for an unknown or already purged session is a no-op.
	CleanupChunks(sessionID string) error
	// SaveFile writes a final merged artifact under the given relative path.
	SaveFile(path string, reader io.Reader) (int64, error)
	// OpenFile opens a final artifact for reading.
	OpenFile(path string) (io.ReadCloser, error)
	// RemoveFile deletes a final artifact, no-op when absent.
	RemoveFile(path string) error
}

// Component storage component
type Component struct {
	StorageCli ChunkStorage
	config     Config
}

var defaultComponent *Component

// New create the default storage component
func New(config Config) (*Component, error) {
	var cli ChunkStorage
	if config.StorageType == "s3" {
		sess, err := session.NewSession(&aws.Config{
			Endpoint:         aws.String(config.S3Endpoint),
			Region:           aws.String(config.S3Region),
			Credentials:      credentials.NewStaticCredentials(config.S3AccessKeyID, config.S3SecretAccessKey, ""),
			S3ForcePathStyle: aws.Bool(true),
		})
		if err != nil {
			logrus.Errorf("failed to create s3 session: %v", err)
			return nil, err
		}
		cli = NewS3Storage(s3.New(sess), config.S3Bucket)
	} else {
		cli = NewLocalStorage(config.LocalBasePath)
	}
	defaultComponent = &Component{StorageCli: cli, config: config}
	return defaultComponent, nil
}

// Default the default storage component
func Default() *Component {
	return defaultComponent
}
