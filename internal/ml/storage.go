package ml

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/implementations/s3"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
)

// ModelStorage stores model artifacts by location
type ModelStorage interface {
	// Store writes the artifact and returns the resolved location
	Store(ctx context.Context, location string, artifact io.Reader) (string, error)
	Retrieve(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
	Exists(ctx context.Context, location string) (bool, error)
}

// StorageMetadata contains metadata about stored artifacts
type StorageMetadata struct {
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// LocalModelStorage implements ModelStorage for the local filesystem
type LocalModelStorage struct {
	logger *logrus.Logger
}

// NewLocalModelStorage creates a new local model storage
func NewLocalModelStorage(logger *logrus.Logger) *LocalModelStorage {
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalModelStorage{logger: logger}
}

// ResolvePath returns the file an artifact stored at location is written
// to. An existing directory, or a path ending in a separator, gets the
// default model file name appended.
func (lms *LocalModelStorage) ResolvePath(location string) string {
	location = strings.TrimPrefix(location, constants.SchemeFile+"://")
	if strings.HasSuffix(location, string(os.PathSeparator)) || strings.HasSuffix(location, "/") {
		return filepath.Join(location, constants.DefaultModelFileName)
	}
	if info, err := os.Stat(location); err == nil && info.IsDir() {
		return filepath.Join(location, constants.DefaultModelFileName)
	}
	return location
}

// Store writes the artifact to a temporary file next to the destination and
// renames it into place, so an existing artifact is replaced atomically.
func (lms *LocalModelStorage) Store(ctx context.Context, location string, artifact io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	artifactPath := lms.ResolvePath(location)
	dir := filepath.Dir(artifactPath)
	if err := os.MkdirAll(dir, constants.DefaultModelDirPerm); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(artifactPath)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, artifact)
	if err != nil {
		cleanup()
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Chmod(tmpPath, constants.DefaultModelFilePerm); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := os.Rename(tmpPath, artifactPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	lms.logger.WithFields(logrus.Fields{
		"path":  artifactPath,
		"bytes": written,
	}).Info("Stored model artifact")

	return artifactPath, nil
}

// Retrieve opens a model artifact
func (lms *LocalModelStorage) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	file, err := os.Open(lms.ResolvePath(location))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return file, nil
}

// Delete deletes a model artifact
func (lms *LocalModelStorage) Delete(ctx context.Context, location string) error {
	artifactPath := lms.ResolvePath(location)
	if err := os.Remove(artifactPath); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	lms.logger.WithField("path", artifactPath).Info("Deleted model artifact")
	return nil
}

// Exists checks if an artifact exists
func (lms *LocalModelStorage) Exists(ctx context.Context, location string) (bool, error) {
	info, err := os.Stat(lms.ResolvePath(location))
	if err == nil {
		return !info.IsDir(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// GetMetadata returns metadata about a stored artifact
func (lms *LocalModelStorage) GetMetadata(ctx context.Context, location string) (*StorageMetadata, error) {
	artifactPath := lms.ResolvePath(location)
	info, err := os.Stat(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	file, err := os.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return &StorageMetadata{
		Size:         info.Size(),
		Checksum:     fmt.Sprintf("%x", hash.Sum(nil)),
		ContentType:  "application/gzip",
		LastModified: info.ModTime(),
	}, nil
}

// BlobFactory opens the blob store for a bucket
type BlobFactory func(bucket string) (interfaces.BlobStorage, error)

// S3ModelStorage implements ModelStorage for s3://bucket/key locations
type S3ModelStorage struct {
	logger  *logrus.Logger
	factory BlobFactory

	mu      sync.Mutex
	buckets map[string]interfaces.BlobStorage
}

// NewS3ModelStorage creates an S3 model storage. The bucket of every
// location overrides the bucket in config.
func NewS3ModelStorage(config s3.S3Config, logger *logrus.Logger) *S3ModelStorage {
	if logger == nil {
		logger = logrus.New()
	}
	factory := func(bucket string) (interfaces.BlobStorage, error) {
		cfg := config
		cfg.Bucket = bucket
		return s3.NewS3Storage(&cfg, logger)
	}
	return NewS3ModelStorageWithFactory(factory, logger)
}

// NewS3ModelStorageWithFactory creates an S3 model storage backed by the
// blob stores returned by factory.
func NewS3ModelStorageWithFactory(factory BlobFactory, logger *logrus.Logger) *S3ModelStorage {
	if logger == nil {
		logger = logrus.New()
	}
	return &S3ModelStorage{
		logger:  logger,
		factory: factory,
		buckets: make(map[string]interfaces.BlobStorage),
	}
}

// Store uploads a model artifact to S3
func (s3s *S3ModelStorage) Store(ctx context.Context, location string, artifact io.Reader) (string, error) {
	blob, key, err := s3s.resolve(location)
	if err != nil {
		return "", err
	}
	if err := blob.Put(ctx, key, artifact); err != nil {
		return "", err
	}

	resolved := s3Location(location, key)
	s3s.logger.WithField("location", resolved).Info("Stored model artifact in S3")
	return resolved, nil
}

// Retrieve downloads a model artifact from S3
func (s3s *S3ModelStorage) Retrieve(ctx context.Context, location string) (io.ReadCloser, error) {
	blob, key, err := s3s.resolve(location)
	if err != nil {
		return nil, err
	}
	return blob.Get(ctx, key)
}

// Delete deletes a model artifact from S3
func (s3s *S3ModelStorage) Delete(ctx context.Context, location string) error {
	blob, key, err := s3s.resolve(location)
	if err != nil {
		return err
	}
	return blob.Delete(ctx, key)
}

// Exists checks if a model artifact exists in S3
func (s3s *S3ModelStorage) Exists(ctx context.Context, location string) (bool, error) {
	blob, key, err := s3s.resolve(location)
	if err != nil {
		return false, err
	}
	return blob.Exists(ctx, key)
}

// Close closes every opened bucket
func (s3s *S3ModelStorage) Close() error {
	s3s.mu.Lock()
	defer s3s.mu.Unlock()

	var firstErr error
	for bucket, blob := range s3s.buckets {
		if err := blob.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s3s.buckets, bucket)
	}
	return firstErr
}

func (s3s *S3ModelStorage) resolve(location string) (interfaces.BlobStorage, string, error) {
	bucket, key, err := s3.ParseLocation(location)
	if err != nil {
		return nil, "", err
	}
	if key == "" || strings.HasSuffix(key, "/") {
		key += constants.DefaultModelFileName
	}

	s3s.mu.Lock()
	defer s3s.mu.Unlock()

	blob, ok := s3s.buckets[bucket]
	if !ok {
		blob, err = s3s.factory(bucket)
		if err != nil {
			return nil, "", err
		}
		s3s.buckets[bucket] = blob
	}
	return blob, key, nil
}

func s3Location(location, key string) string {
	bucket, _, _ := s3.ParseLocation(location)
	return fmt.Sprintf("%s://%s/%s", constants.SchemeS3, bucket, key)
}
