package file

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// FileStorageConfig contains configuration for the file report sink
type FileStorageConfig struct {
	BasePath    string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
	Compression bool   `json:"compression" yaml:"compression" mapstructure:"compression"` // gzip compression
	CreateDirs  bool   `json:"create_dirs" yaml:"create_dirs" mapstructure:"create_dirs"` // auto-create directories
	Indent      bool   `json:"indent" yaml:"indent" mapstructure:"indent"`
}

// FileStorage writes each detection report to <base_path>/<run_id>.json
type FileStorage struct {
	config    *FileStorageConfig
	logger    *logrus.Logger
	mu        sync.Mutex
	connected bool
}

var _ interfaces.ReportSink = (*FileStorage)(nil)

// NewFileStorage creates a new file storage instance
func NewFileStorage(config *FileStorageConfig, logger *logrus.Logger) (*FileStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError("INVALID_CONFIG", "FileStorageConfig cannot be nil")
	}

	if config.BasePath == "" {
		return nil, errors.NewStorageError("INVALID_CONFIG", "BasePath is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &FileStorage{
		config: config,
		logger: logger,
	}, nil
}

// Connect prepares the base directory
func (fs *FileStorage) Connect(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.connected {
		return nil
	}

	if fs.config.CreateDirs {
		if err := os.MkdirAll(fs.config.BasePath, 0755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, "DIRECTORY_CREATION_FAILED",
				fmt.Sprintf("Failed to create directory: %s", fs.config.BasePath))
		}
	}

	info, err := os.Stat(fs.config.BasePath)
	if os.IsNotExist(err) {
		return errors.NewStorageError("PATH_NOT_FOUND", fmt.Sprintf("Base path does not exist: %s", fs.config.BasePath))
	}
	if err != nil || !info.IsDir() {
		return errors.NewStorageError("PATH_NOT_FOUND", fmt.Sprintf("Base path is not a directory: %s", fs.config.BasePath))
	}

	fs.connected = true
	fs.logger.WithField("base_path", fs.config.BasePath).Debug("File storage connected")

	return nil
}

// Close implements interfaces.ReportSink
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	fs.connected = false
	fs.mu.Unlock()
	return nil
}

// Publish writes the report as JSON
func (fs *FileStorage) Publish(ctx context.Context, report *models.Report) error {
	if err := fs.Connect(ctx); err != nil {
		return err
	}

	filePath := fs.reportPath(report.RunID)
	if err := fs.writeJSON(filePath, report); err != nil {
		return err
	}

	fs.logger.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"path":   filePath,
	}).Info("Wrote report")

	return nil
}

func (fs *FileStorage) reportPath(runID string) string {
	name := runID + ".json"
	if fs.config.Compression {
		name += ".gz"
	}
	return filepath.Join(fs.config.BasePath, name)
}

func (fs *FileStorage) writeJSON(filePath string, report *models.Report) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "FILE_CREATE_FAILED",
			fmt.Sprintf("Failed to create file: %s", filePath))
	}
	defer file.Close()

	var w io.Writer = file
	var gz *gzip.Writer
	if fs.config.Compression {
		gz = gzip.NewWriter(file)
		w = gz
	}

	encoder := json.NewEncoder(w)
	if fs.config.Indent {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(report); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, "JSON_ENCODE_FAILED", "Failed to encode JSON")
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to compress report")
		}
	}
	return nil
}
