package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"

	"github.com/andywolf/triagebot/internal/telemetry"
)

// entryLogger is the subset of *logging.Logger used by CloudRecorder.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudRecorder writes telemetry records to a Cloud Logging log as
// structured JSON payloads.
type CloudRecorder struct {
	client *logging.Client
	logger entryLogger
}

var _ telemetry.Recorder = (*CloudRecorder)(nil)

// NewCloudRecorder creates a recorder writing to projects/<projectID>/logs/<logName>.
func NewCloudRecorder(ctx context.Context, projectID, logName string, labels map[string]string, opts ...option.ClientOption) (*CloudRecorder, error) {
	client, err := logging.NewClient(ctx, "projects/"+projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}

	return &CloudRecorder{
		client: client,
		logger: client.Logger(logName, logging.CommonLabels(labels)),
	}, nil
}

// Record buffers rec for asynchronous delivery.
func (r *CloudRecorder) Record(_ context.Context, rec telemetry.Record) error {
	labels := map[string]string{"event": rec.Name}
	if rec.Bot != "" {
		labels["bot"] = rec.Bot
	}
	if rec.RunID != "" {
		labels["run_id"] = rec.RunID
	}

	r.logger.Log(logging.Entry{
		Timestamp: rec.Timestamp,
		Severity:  logging.Info,
		Labels:    labels,
		InsertID:  rec.ID,
		Payload:   rec,
	})
	return nil
}

// Close flushes buffered entries and closes the client.
func (r *CloudRecorder) Close() error {
	flushErr := r.logger.Flush()
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			return fmt.Errorf("failed to close logging client: %w", err)
		}
	}
	if flushErr != nil {
		return fmt.Errorf("failed to flush telemetry: %w", flushErr)
	}
	return nil
}
