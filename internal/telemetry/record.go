// Package telemetry records bot actions (state transitions, escalations) as
// discrete records for later analysis. Recording is best-effort: callers log
// recorder failures and carry on.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is one telemetry event.
type Record struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	RunID      string            `json:"run_id,omitempty"`
	Bot        string            `json:"bot,omitempty"`
	Name       string            `json:"name"`
	Issue      string            `json:"issue,omitempty"` // owner/repo#number
	Properties map[string]string `json:"properties,omitempty"`
}

// NewRecord creates a record with a fresh ID and the current time.
func NewRecord(name string, properties map[string]string) Record {
	return Record{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Name:       name,
		Properties: properties,
	}
}

// Recorder persists telemetry records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Record) error { return nil }
func (nopRecorder) Close() error                         { return nil }

// Nop returns a Recorder that drops everything.
func Nop() Recorder {
	return nopRecorder{}
}

// Memory keeps records in memory. Useful in tests.
type Memory struct {
	Records []Record
	Err     error
}

func (m *Memory) Record(_ context.Context, rec Record) error {
	if m.Err != nil {
		return m.Err
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *Memory) Close() error { return nil }

// Names returns the recorded event names in order.
func (m *Memory) Names() []string {
	names := make([]string, 0, len(m.Records))
	for _, r := range m.Records {
		names = append(names, r.Name)
	}
	return names
}
