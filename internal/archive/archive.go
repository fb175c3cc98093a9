// Package archive stores finished cycle reports as JSON objects.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"outreach_backend/internal/outreach"
	"outreach_backend/platform/apperr"
)

// DefaultBucket holds cycle reports when no bucket is configured.
const DefaultBucket = "outreach-cycle-reports"

const reportPrefix = "cycles/"

// ErrNotFound is returned for unknown report ids.
var ErrNotFound = apperr.NotFound("cycle report not found")

// BlobStore is the object storage the archive writes to.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Archive implements outreach.Archiver.
type Archive struct {
	store BlobStore
}

func New(store BlobStore) *Archive {
	return &Archive{store: store}
}

// ReportKey is the object key of a cycle report: cycles/YYYY/MM/DD/<id>.json
// keyed by start date so a bucket listing reads chronologically.
func ReportKey(r *outreach.CycleReport) string {
	return reportPrefix + r.StartedAt.UTC().Format("2006/01/02") + "/" + r.ID + ".json"
}

func (a *Archive) ArchiveCycleReport(ctx context.Context, r *outreach.CycleReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode cycle report", err).WithOp("archive.put")
	}
	if err := a.store.Put(ctx, ReportKey(r), "application/json", data); err != nil {
		return apperr.External("archive cycle report", err).WithOp("archive.put")
	}
	return nil
}

// Fetch loads an archived report by its key.
func (a *Archive) Fetch(ctx context.Context, key string) (*outreach.CycleReport, error) {
	if !strings.HasPrefix(key, reportPrefix) || !strings.HasSuffix(key, ".json") {
		return nil, apperr.Validation("invalid cycle report key")
	}
	data, err := a.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.External("fetch cycle report", err).WithOp("archive.get")
	}
	var r outreach.CycleReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "decode cycle report", err).WithOp("archive.get")
	}
	return &r, nil
}
