package gcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/logging"

	"github.com/andywolf/triagebot/internal/telemetry"
)

type fakeEntryLogger struct {
	entries  []logging.Entry
	flushErr error
	flushed  bool
}

func (f *fakeEntryLogger) Log(e logging.Entry) {
	f.entries = append(f.entries, e)
}

func (f *fakeEntryLogger) Flush() error {
	f.flushed = true
	return f.flushErr
}

func TestCloudRecorder_Record(t *testing.T) {
	fake := &fakeEntryLogger{}
	rec := &CloudRecorder{logger: fake}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := telemetry.Record{
		ID:        "abc",
		Timestamp: ts,
		RunID:     "run-9",
		Bot:       "stale-closer",
		Name:      "rejected",
		Issue:     "octo/hello#4",
	}
	if err := rec.Record(context.Background(), record); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(fake.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(fake.entries))
	}
	e := fake.entries[0]
	if e.Severity != logging.Info {
		t.Errorf("Severity = %v, want Info", e.Severity)
	}
	if e.InsertID != "abc" || !e.Timestamp.Equal(ts) {
		t.Errorf("InsertID = %q, Timestamp = %v", e.InsertID, e.Timestamp)
	}
	if e.Labels["event"] != "rejected" || e.Labels["bot"] != "stale-closer" || e.Labels["run_id"] != "run-9" {
		t.Errorf("Labels = %v", e.Labels)
	}
	if payload, ok := e.Payload.(telemetry.Record); !ok || payload.Issue != "octo/hello#4" {
		t.Errorf("Payload = %#v", e.Payload)
	}
}

func TestCloudRecorder_CloseFlushes(t *testing.T) {
	fake := &fakeEntryLogger{flushErr: errors.New("quota")}
	rec := &CloudRecorder{logger: fake}

	err := rec.Close()
	if !fake.flushed {
		t.Error("Close did not flush")
	}
	if err == nil {
		t.Error("Close should report the flush error")
	}
}
