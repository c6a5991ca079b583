package interfaces

import (
	"context"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// ReportSink defines the interface for publishing detection reports
type ReportSink interface {
	// Publish stores or forwards the report
	Publish(ctx context.Context, report *models.Report) error

	// Close releases resources held by the sink
	Close() error
}

// OperationRecorder counts storage operations by backend, operation and
// outcome
type OperationRecorder interface {
	RecordOperation(backend, operation, status string)
}
