// Package ml persists trained models to local files or object storage.
package ml

import (
	"bytes"
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/autoencoder"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage/implementations/s3"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
)

// Persistence saves and loads models, routing each location to the storage
// for its scheme: s3://bucket/key goes to S3, anything else is a local path.
type Persistence struct {
	local    *LocalModelStorage
	s3       *S3ModelStorage
	recorder interfaces.OperationRecorder
	logger   *logrus.Logger
}

// NewPersistence creates a Persistence. s3Config supplies region,
// credentials and endpoint for s3:// locations.
func NewPersistence(s3Config s3.S3Config, logger *logrus.Logger) *Persistence {
	if logger == nil {
		logger = logrus.New()
	}
	return &Persistence{
		local:  NewLocalModelStorage(logger),
		s3:     NewS3ModelStorage(s3Config, logger),
		logger: logger,
	}
}

// NewPersistenceWithStorage creates a Persistence over the given storages.
func NewPersistenceWithStorage(local *LocalModelStorage, remote *S3ModelStorage, logger *logrus.Logger) *Persistence {
	if logger == nil {
		logger = logrus.New()
	}
	return &Persistence{local: local, s3: remote, logger: logger}
}

// SetRecorder reports every save and load to recorder.
func (p *Persistence) SetRecorder(recorder interfaces.OperationRecorder) {
	p.recorder = recorder
}

// StorageFor returns the storage responsible for location.
func (p *Persistence) StorageFor(location string) (ModelStorage, error) {
	if backendFor(location) == constants.SchemeS3 {
		if p.s3 == nil {
			return nil, errors.NewInvalidConfigError("model_output_path", "s3 storage is not configured")
		}
		return p.s3, nil
	}
	return p.local, nil
}

// SaveModel writes model to location and returns the resolved location.
// Saving again to the same location replaces the artifact.
func (p *Persistence) SaveModel(ctx context.Context, model interfaces.TrainableModel, location string) (resolved string, err error) {
	if location == "" {
		return "", errors.NewInvalidConfigError("model_output_path", "must not be empty")
	}
	defer func() { p.record(location, constants.OperationStore, err) }()

	var buf bytes.Buffer
	if err := model.Save(&buf); err != nil {
		if errors.IsType(err, errors.ErrorTypePersistence) {
			return "", err
		}
		return "", errors.NewPersistenceError(err, location)
	}
	size := buf.Len()

	storage, err := p.StorageFor(location)
	if err != nil {
		return "", err
	}
	resolved, err = storage.Store(ctx, location, &buf)
	if err != nil {
		return "", errors.NewPersistenceError(err, location)
	}

	fields := logrus.Fields{
		"location": resolved,
		"bytes":    size,
	}
	if backendFor(location) == constants.BackendLocal {
		if meta, err := p.local.GetMetadata(ctx, resolved); err == nil {
			fields["checksum"] = meta.Checksum
		}
	}
	p.logger.WithFields(fields).Info("Saved model")

	return resolved, nil
}

// LoadModel reads a model saved with SaveModel.
func (p *Persistence) LoadModel(ctx context.Context, location string) (model *autoencoder.Model, err error) {
	defer func() { p.record(location, constants.OperationRetrieve, err) }()

	storage, err := p.StorageFor(location)
	if err != nil {
		return nil, err
	}
	rc, err := storage.Retrieve(ctx, location)
	if err != nil {
		return nil, errors.NewModelReadError(err, location)
	}
	defer rc.Close()

	model, err = autoencoder.Load(rc, p.logger)
	if err != nil {
		if appErr, ok := err.(*errors.AppError); ok {
			appErr.WithContext("location", location)
		}
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"location": location,
		"layers":   model.Config().Layers,
	}).Info("Loaded model")

	return model, nil
}

func (p *Persistence) record(location, operation string, err error) {
	if p.recorder == nil {
		return
	}
	status := constants.StatusSuccess
	if err != nil {
		status = constants.StatusFailure
	}
	p.recorder.RecordOperation(backendFor(location), operation, status)
}

func backendFor(location string) string {
	if strings.HasPrefix(location, constants.SchemeS3+"://") {
		return constants.SchemeS3
	}
	return constants.BackendLocal
}

// Close releases remote storage clients.
func (p *Persistence) Close() error {
	if p.s3 == nil {
		return nil
	}
	return p.s3.Close()
}
