package sorter

import (
	"github.com/google/uuid"
)

// FailedFile is one per-record failure surfaced to the caller.
type FailedFile struct {
	Path string
	// Reason is a human-readable description of Err.
	Reason string
	Err    error
}

// BatchReport summarises a run or a processing step.
type BatchReport struct {
	BatchID uuid.UUID
	DryRun  bool
	// Moved counts records moved during this step.
	Moved  int
	Failed []FailedFile
	// Skipped lists discovered paths that were not processed: unreadable
	// directories, unsupported or non-regular files, and files already in place.
	Skipped []string
	// Planned lists the previewed moves of a dry run.
	Planned []PlannedMove
}

// HasFailures reports whether any record failed.
func (r *BatchReport) HasFailures() bool {
	return len(r.Failed) > 0
}

func newBatchReport(batch *Batch, dryRun bool) *BatchReport {
	return &BatchReport{
		BatchID: batch.ID,
		DryRun:  dryRun,
		Failed:  []FailedFile{},
		Skipped: []string{},
	}
}

// collect adds the outcome of records to the report.
func (r *BatchReport) collect(records []*ImageRecord) {
	for _, record := range records {
		switch {
		case record.Failed():
			r.Failed = append(r.Failed, FailedFile{
				Path:   record.SourcePath,
				Reason: record.Err.Error(),
				Err:    record.Err,
			})
		case record.Status == StatusMoved:
			r.Moved++
		case record.InPlace:
			r.Skipped = append(r.Skipped, record.SourcePath)
		}
	}
}
