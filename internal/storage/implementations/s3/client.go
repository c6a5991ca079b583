package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" mapstructure:"part_size"`
	StorageClass    string        `json:"storage_class" mapstructure:"storage_class"`
}

// S3Storage stores model artifacts and other blobs in an S3 bucket
type S3Storage struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
	closed     bool
}

var _ interfaces.BlobStorage = (*S3Storage)(nil)

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(config *S3Config, logger *logrus.Logger) (*S3Storage, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 config cannot be nil")
	}

	if config.Bucket == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "S3 bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &S3Storage{
		config: config,
		logger: logger,
	}, nil
}

// Connect creates the AWS session and verifies access to the bucket
func (s *S3Storage) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil // Already connected
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}

	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}

	// S3-compatible services
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}

	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to create AWS session")
	}

	client := s3.New(sess)
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	}); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("Failed to access bucket '%s'", s.config.Bucket))
	}

	s.s3Client = client
	s.uploader = s3manager.NewUploaderWithClient(client)
	s.downloader = s3manager.NewDownloaderWithClient(client)
	if s.config.PartSize > 0 {
		s.uploader.PartSize = s.config.PartSize
	}
	s.closed = false

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
	}).Info("Connected to S3")

	return nil
}

// Close releases the S3 clients
func (s *S3Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	s.closed = true

	s.logger.Debug("S3 connection closed")
	return nil
}

// Put uploads data under key, overwriting any existing object
func (s *S3Storage) Put(ctx context.Context, key string, data io.Reader) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	counter := &countingReader{r: data}
	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.generateKey(key)),
		Body:        counter,
		ContentType: aws.String("application/octet-stream"),
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	start := time.Now()
	result, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to upload to S3")
	}

	s.logger.WithFields(logrus.Fields{
		"location": result.Location,
		"bytes":    counter.n,
		"duration": time.Since(start),
	}).Debug("Uploaded object to S3")

	return nil
}

// Get downloads the object stored under key
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := aws.NewWriteAtBuffer([]byte{})
	n, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewStorageError("NOT_FOUND", fmt.Sprintf("Object '%s' not found", key))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to download from S3")
	}

	s.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": n,
	}).Debug("Downloaded object from S3")

	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// Delete removes the object stored under key
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(key)),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "DELETE_FAILED", "Failed to delete from S3")
	}
	return nil
}

// Exists reports whether an object is stored under key
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return false, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to stat S3 object")
	}
	return true, nil
}

func (s *S3Storage) ensureConnected(ctx context.Context) error {
	s.mu.RLock()
	connected := s.s3Client != nil
	s.mu.RUnlock()
	if connected {
		return nil
	}
	return s.Connect(ctx)
}

func (s *S3Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// generateKey applies the configured prefix to key
func (s *S3Storage) generateKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.config.Prefix != "" {
		return path.Join(s.config.Prefix, key)
	}
	return key
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey")
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

// ParseLocation splits an s3://bucket/key location into bucket and key.
// The key may be empty.
func ParseLocation(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 location must name a bucket: %q", location)
	}
	return bucket, key, nil
}
