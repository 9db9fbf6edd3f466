package report

import (
	"context"
	"testing"
	"time"
)

func sampleReport(reported string) *Report {
	return &Report{
		ReporterID: "reporter",
		ReportedID: reported,
		Reason:     "spam",
		Details:    "sent the same link five times",
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReportValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Report)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Report) {}},
		{name: "missing reporter", mutate: func(r *Report) { r.ReporterID = "" }, wantErr: true},
		{name: "missing reported", mutate: func(r *Report) { r.ReportedID = "" }, wantErr: true},
		{name: "unknown reason", mutate: func(r *Report) { r.Reason = "annoying" }, wantErr: true},
		{name: "details optional", mutate: func(r *Report) { r.Details = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport("target")
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, reported := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, sampleReport(reported)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d reports, want 3", len(got))
	}
	for i, reported := range []string{"a", "b", "c"} {
		if got[i].ReportedID != reported {
			t.Errorf("reports[%d].ReportedID = %q, want %q", i, got[i].ReportedID, reported)
		}
	}
}

func TestMemoryStore_RejectsInvalid(t *testing.T) {
	s := NewMemoryStore()
	r := sampleReport("target")
	r.Reason = "nope"

	if err := s.Create(context.Background(), r); err == nil {
		t.Fatal("invalid report accepted")
	}
	if got, _ := s.List(context.Background()); len(got) != 0 {
		t.Errorf("invalid report stored: %v", got)
	}
}

func TestWriter_PersistsQueuedReports(t *testing.T) {
	s := NewMemoryStore()
	w := NewWriter(s)

	for i := 0; i < 10; i++ {
		w.Record(*sampleReport("target"))
	}
	w.Close()

	got, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Errorf("persisted %d reports, want 10", len(got))
	}
}

func TestWriter_RecordAfterCloseDoesNotBlock(t *testing.T) {
	w := NewWriter(NewMemoryStore())
	w.Record(*sampleReport("target"))
	w.Close()
	// Records after close are dropped once the queue has no consumer; the
	// call itself must not panic or block.
	w.Record(*sampleReport("late"))
}
