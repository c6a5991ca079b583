package s3

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
)

func TestNewS3Storage(t *testing.T) {
	config := &S3Config{
		Region: "us-east-1",
		Bucket: "test-bucket",
	}

	logger := logrus.New()
	storage, err := NewS3Storage(config, logger)

	require.NoError(t, err)
	require.NotNil(t, storage)
	assert.Equal(t, config, storage.config)
	assert.Equal(t, logger, storage.logger)
}

func TestNewS3StorageInvalidConfig(t *testing.T) {
	_, err := NewS3Storage(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 config cannot be nil")

	config := &S3Config{Region: "us-east-1"}
	_, err = NewS3Storage(config, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 bucket is required")
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestS3StorageGenerateKey(t *testing.T) {
	storage, err := NewS3Storage(&S3Config{
		Region: "us-east-1",
		Bucket: "test-bucket",
		Prefix: "test-prefix",
	}, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "test-prefix/models/model.gob.gz", storage.generateKey("models/model.gob.gz"))
	assert.Equal(t, "test-prefix/model.gob.gz", storage.generateKey("/model.gob.gz"))
}

func TestS3StorageGenerateKeyNoPrefix(t *testing.T) {
	storage, err := NewS3Storage(&S3Config{
		Region: "us-east-1",
		Bucket: "test-bucket",
	}, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "models/model.gob.gz", storage.generateKey("models/model.gob.gz"))
}

func TestS3StorageCloseIsIdempotent(t *testing.T) {
	storage, err := NewS3Storage(&S3Config{Bucket: "test-bucket"}, logrus.New())
	require.NoError(t, err)

	assert.NoError(t, storage.Close())
	assert.NoError(t, storage.Close())
	assert.True(t, storage.closed)
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		location string
		bucket   string
		key      string
		wantErr  bool
	}{
		{"s3://models/run/model.gob.gz", "models", "run/model.gob.gz", false},
		{"s3://models/run/", "models", "run/", false},
		{"s3://models", "models", "", false},
		{"s3:///key", "", "", true},
		{"/tmp/model.gob.gz", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			bucket, key, err := ParseLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}
