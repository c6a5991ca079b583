package ml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/autoencoder"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// memoryBlob is an in-memory BlobStorage.
type memoryBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	closed  bool
}

func newMemoryBlob() *memoryBlob {
	return &memoryBlob{objects: make(map[string][]byte)}
}

func (m *memoryBlob) Put(ctx context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memoryBlob) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryBlob) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryBlob) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memoryBlob) Close() error {
	m.closed = true
	return nil
}

type operation struct {
	backend, name, status string
}

type recordingRecorder struct {
	mu  sync.Mutex
	ops []operation
}

func (r *recordingRecorder) RecordOperation(backend, name, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, operation{backend, name, status})
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestModel(t *testing.T) *autoencoder.Model {
	t.Helper()
	cfg := autoencoder.DefaultConfig(2)
	cfg.Layers = autoencoder.BuildLayers(2, []int{6, 4, 2})
	model, err := autoencoder.NewModel(cfg, quietLogger())
	require.NoError(t, err)
	return model
}

func testWindow() models.Window {
	return models.Window{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}}
}

func newTestPersistence(blobs map[string]*memoryBlob) *Persistence {
	logger := quietLogger()
	factory := func(bucket string) (interfaces.BlobStorage, error) {
		blob, ok := blobs[bucket]
		if !ok {
			return nil, fmt.Errorf("unknown bucket %q", bucket)
		}
		return blob, nil
	}
	return NewPersistenceWithStorage(NewLocalModelStorage(logger),
		NewS3ModelStorageWithFactory(factory, logger), logger)
}

func TestSaveLoadLocal(t *testing.T) {
	p := newTestPersistence(nil)
	model := newTestModel(t)
	location := filepath.Join(t.TempDir(), "nested", "model.gob.gz")

	resolved, err := p.SaveModel(context.Background(), model, location)
	require.NoError(t, err)
	assert.Equal(t, location, resolved)

	loaded, err := p.LoadModel(context.Background(), location)
	require.NoError(t, err)

	want, err := model.Score(testWindow())
	require.NoError(t, err)
	got, err := loaded.Score(testWindow())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveLoadRecordsOperations(t *testing.T) {
	blob := newMemoryBlob()
	p := newTestPersistence(map[string]*memoryBlob{"models": blob})
	recorder := &recordingRecorder{}
	p.SetRecorder(recorder)

	logger, hook := test.NewNullLogger()
	p.logger = logger
	p.local = NewLocalModelStorage(logger)

	model := newTestModel(t)
	location := filepath.Join(t.TempDir(), "model.gob.gz")
	_, err := p.SaveModel(context.Background(), model, location)
	require.NoError(t, err)

	saved := hook.LastEntry()
	require.NotNil(t, saved)
	assert.Equal(t, "Saved model", saved.Message)
	assert.Len(t, saved.Data["checksum"], 32)

	_, err = p.LoadModel(context.Background(), location)
	require.NoError(t, err)
	_, err = p.SaveModel(context.Background(), model, "s3://models/model.gob.gz")
	require.NoError(t, err)
	_, err = p.LoadModel(context.Background(), "s3://missing/model.gob.gz")
	require.Error(t, err)

	assert.Equal(t, []operation{
		{constants.BackendLocal, constants.OperationStore, constants.StatusSuccess},
		{constants.BackendLocal, constants.OperationRetrieve, constants.StatusSuccess},
		{constants.SchemeS3, constants.OperationStore, constants.StatusSuccess},
		{constants.SchemeS3, constants.OperationRetrieve, constants.StatusFailure},
	}, recorder.ops)
}

func TestSaveToDirectoryAppendsFileName(t *testing.T) {
	p := newTestPersistence(nil)
	dir := t.TempDir()

	resolved, err := p.SaveModel(context.Background(), newTestModel(t), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, constants.DefaultModelFileName), resolved)

	_, err = os.Stat(resolved)
	assert.NoError(t, err)

	_, err = p.LoadModel(context.Background(), dir)
	assert.NoError(t, err)
}

func TestSaveOverwritesIdempotently(t *testing.T) {
	p := newTestPersistence(nil)
	location := filepath.Join(t.TempDir(), "model.gob.gz")
	model := newTestModel(t)

	_, err := p.SaveModel(context.Background(), model, location)
	require.NoError(t, err)
	first, err := os.ReadFile(location)
	require.NoError(t, err)

	_, err = p.SaveModel(context.Background(), model, location)
	require.NoError(t, err)
	second, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(filepath.Dir(location))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestSaveToUnwritableLocation(t *testing.T) {
	p := newTestPersistence(nil)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := p.SaveModel(context.Background(), newTestModel(t), filepath.Join(blocker, "model.gob.gz"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
}

func TestSaveEmptyLocation(t *testing.T) {
	_, err := newTestPersistence(nil).SaveModel(context.Background(), newTestModel(t), "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	p := newTestPersistence(nil)
	dir := t.TempDir()

	_, err := p.LoadModel(context.Background(), filepath.Join(dir, "missing.gob.gz"))
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))

	corrupt := filepath.Join(dir, "corrupt.gob.gz")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0644))
	_, err = p.LoadModel(context.Background(), corrupt)
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
}

func TestSaveLoadS3(t *testing.T) {
	blob := newMemoryBlob()
	p := newTestPersistence(map[string]*memoryBlob{"models": blob})
	model := newTestModel(t)

	resolved, err := p.SaveModel(context.Background(), model, "s3://models/runs/")
	require.NoError(t, err)
	assert.Equal(t, "s3://models/runs/"+constants.DefaultModelFileName, resolved)
	assert.Contains(t, blob.objects, "runs/"+constants.DefaultModelFileName)

	loaded, err := p.LoadModel(context.Background(), resolved)
	require.NoError(t, err)
	want, _ := model.Score(testWindow())
	got, _ := loaded.Score(testWindow())
	assert.Equal(t, want, got)

	require.NoError(t, p.Close())
	assert.True(t, blob.closed)
}

func TestSaveS3UnknownBucket(t *testing.T) {
	p := newTestPersistence(map[string]*memoryBlob{})
	_, err := p.SaveModel(context.Background(), newTestModel(t), "s3://missing/model.gob.gz")
	assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
}

func TestLocalGetMetadata(t *testing.T) {
	storage := NewLocalModelStorage(quietLogger())
	location := filepath.Join(t.TempDir(), "artifact")

	_, err := storage.Store(context.Background(), location, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	meta, err := storage.GetMetadata(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", meta.Checksum)

	exists, err := storage.Exists(context.Background(), location)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, storage.Delete(context.Background(), location))
	exists, err = storage.Exists(context.Background(), location)
	require.NoError(t, err)
	assert.False(t, exists)
}
