package file

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

func testReport() *models.Report {
	return &models.Report{
		RunID:     "run-1",
		FinalLoss: math.NaN(),
		Normal:    []models.ScoredWindow{{Score: 0.1, Index: 2}},
		Anomalous: []models.ScoredWindow{{Score: math.Inf(1), Index: 5}},
	}
}

func TestPublishWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: dir, CreateDirs: true, Indent: true}, logrus.New())
	require.NoError(t, err)

	require.NoError(t, storage.Publish(context.Background(), testReport()))

	data, err := os.ReadFile(filepath.Join(dir, "run-1.json"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Nil(t, decoded["final_loss"])

	anomalous := decoded["anomalous"].([]interface{})
	require.Len(t, anomalous, 1)
	assert.Nil(t, anomalous[0].(map[string]interface{})["score"])
	assert.Equal(t, 5.0, anomalous[0].(map[string]interface{})["index"])
}

func TestPublishCompressed(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: dir, Compression: true}, logrus.New())
	require.NoError(t, err)

	require.NoError(t, storage.Publish(context.Background(), testReport()))

	f, err := os.Open(filepath.Join(dir, "run-1.json.gz"))
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var decoded models.Report
	require.NoError(t, json.NewDecoder(zr).Decode(&decoded))
	assert.Equal(t, "run-1", decoded.RunID)
}

func TestPublishMissingDirectory(t *testing.T) {
	storage, err := NewFileStorage(&FileStorageConfig{BasePath: filepath.Join(t.TempDir(), "missing")}, logrus.New())
	require.NoError(t, err)

	err = storage.Publish(context.Background(), testReport())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeStorage))
}

func TestNewFileStorageInvalidConfig(t *testing.T) {
	_, err := NewFileStorage(nil, logrus.New())
	assert.Error(t, err)
	_, err = NewFileStorage(&FileStorageConfig{}, logrus.New())
	assert.Error(t, err)
}
