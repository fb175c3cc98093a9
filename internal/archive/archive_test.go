package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"outreach_backend/internal/outreach"
	"outreach_backend/platform/apperr"
)

type memoryBlobs struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryBlobs) Put(_ context.Context, key, contentType string, data []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func sampleReport() *outreach.CycleReport {
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return &outreach.CycleReport{
		ID:         "c0ffee",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		NewLeads:   []outreach.Outcome{{Email: "ada@firm.test", Action: outreach.OutcomeBookingInviteSent, Success: true}},
		Replies:    []outreach.Outcome{},
		Bookings:   []outreach.Outcome{},
		FollowUps:  []outreach.Outcome{},
		Errors:     []outreach.StageError{{Stage: outreach.StageReplies, Error: "imap timeout"}},
		Summary:    outreach.CycleSummary{DurationSeconds: 3, TotalNewLeadsProcessed: 1, TotalErrors: 1},
	}
}

func TestArchiveStoresReportAsJSON(t *testing.T) {
	blobs := newMemoryBlobs()
	a := New(blobs)
	report := sampleReport()

	if err := a.ArchiveCycleReport(context.Background(), report); err != nil {
		t.Fatalf("archive: %v", err)
	}
	key := ReportKey(report)
	if key != "cycles/2025/03/10/c0ffee.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if blobs.types[key] != "application/json" || !strings.Contains(string(blobs.objects[key]), `"total_errors": 1`) {
		t.Fatalf("unexpected object %s", blobs.objects[key])
	}

	got, err := a.Fetch(context.Background(), key)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.ID != report.ID || len(got.Errors) != 1 || got.NewLeads[0].Email != "ada@firm.test" {
		t.Fatalf("unexpected report %+v", got)
	}
}

func TestArchiveErrors(t *testing.T) {
	blobs := newMemoryBlobs()
	blobs.putErr = errors.New("bucket unavailable")
	a := New(blobs)

	if err := a.ArchiveCycleReport(context.Background(), sampleReport()); !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
	if _, err := a.Fetch(context.Background(), "cycles/2025/03/10/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.Fetch(context.Background(), "../etc/passwd"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
