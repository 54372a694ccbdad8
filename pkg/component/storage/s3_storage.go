package storage

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
)

// S3Storage chunk storage on an s3 compatible object store.
type S3Storage struct {
	s3Client *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Storage new s3 storage for the given bucket
func NewS3Storage(client *s3.S3, bucket string) *S3Storage {
	return &S3Storage{
		s3Client: client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   bucket,
	}
}

func (s3s *S3Storage) sessionPrefix(sessionID string) string {
	return path.Join(chunkSessionDir, sessionID) + "/"
}

func (s3s *S3Storage) chunkKey(sessionID string, index int) string {
	return path.Join(chunkSessionDir, sessionID, strconv.Itoa(index))
}

// SaveChunk write or overwrite one chunk object
func (s3s *S3Storage) SaveChunk(sessionID string, index int, reader io.Reader) (int64, error) {
	// chunks are bounded by the chunk size policy, buffering one is fine
	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, err
	}
	_, err = s3s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(s3s.chunkKey(sessionID, index)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to put chunk object: %w", err)
	}
	return int64(len(data)), nil
}

// ChunkExists whether the chunk object is present
func (s3s *S3Storage) ChunkExists(sessionID string, index int) bool {
	_, err := s3s.s3Client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(s3s.chunkKey(sessionID, index)),
	})
	return err == nil
}

// ListChunks list session chunks in ascending numeric index order
func (s3s *S3Storage) ListChunks(sessionID string) ([]Chunk, error) {
	prefix := s3s.sessionPrefix(sessionID)
	var chunks []Chunk
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s3s.bucket),
		Prefix: aws.String(prefix),
	}
	err := s3s.s3Client.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, item := range page.Contents {
			key := *item.Key
			index, err := strconv.Atoi(path.Base(key))
			if err != nil {
				continue
			}
			chunks = append(chunks, Chunk{
				Index: index,
				Size:  *item.Size,
				Open: func() (io.ReadCloser, error) {
					output, err := s3s.s3Client.GetObject(&s3.GetObjectInput{
						Bucket: aws.String(s3s.bucket),
						Key:    aws.String(key),
					})
					if err != nil {
						return nil, err
					}
					return output.Body, nil
				},
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk objects: %w", err)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// CleanupChunks remove every chunk object of the session
func (s3s *S3Storage) CleanupChunks(sessionID string) error {
	chunks, err := s3s.ListChunks(sessionID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	objects := make([]*s3.ObjectIdentifier, 0, len(chunks))
	for _, chunk := range chunks {
		objects = append(objects, &s3.ObjectIdentifier{
			Key: aws.String(s3s.chunkKey(sessionID, chunk.Index)),
		})
	}
	_, err = s3s.s3Client.DeleteObjects(&s3.DeleteObjectsInput{
		Bucket: aws.String(s3s.bucket),
		Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		logrus.Errorf("failed to delete chunk objects for session %s: %v", sessionID, err)
		return err
	}
	return nil
}

// SaveFile stream a final artifact into the bucket, multipart for large bodies
func (s3s *S3Storage) SaveFile(filePath string, reader io.Reader) (int64, error) {
	counted := &countingReader{r: reader}
	_, err := s3s.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(filePath),
		Body:   counted,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload file object: %w", err)
	}
	return counted.n, nil
}

// OpenFile open a final artifact
func (s3s *S3Storage) OpenFile(filePath string) (io.ReadCloser, error) {
	output, err := s3s.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(filePath),
	})
	if err != nil {
		return nil, err
	}
	return output.Body, nil
}

// RemoveFile delete a final artifact
func (s3s *S3Storage) RemoveFile(filePath string) error {
	_, err := s3s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s3s.bucket),
		Key:    aws.String(filePath),
	})
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
