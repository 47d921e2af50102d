package sorter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Selection picks the records a Process call works on.
type Selection struct {
	all     bool
	indices []int
}

// All selects every record of the batch.
func All() Selection {
	return Selection{all: true}
}

// Selected selects records by their snapshot index.
func Selected(indices ...int) Selection {
	return Selection{indices: append([]int(nil), indices...)}
}

// Snapshot is a read-only copy of the current batch.
type Snapshot struct {
	BatchID   uuid.UUID
	Stage     Stage
	SourceDir string
	Records   []ImageRecord
	Skipped   []string
}

// ErrNoBatch is returned by Process before the first Scan.
var ErrNoBatch = errors.New("no batch scanned")

// Session holds the single in-memory batch an interactive view works on.
// Every scan replaces the batch wholesale.
type Session struct {
	mu       sync.Mutex
	pipeline *scanPipeline
	opts     Options
	batch    *Batch
}

// NewSession creates a Session on the OS filesystem. SourceDir in opts is
// ignored; Scan takes the directory explicitly.
func NewSession(opts Options) *Session {
	return NewSessionWithFs(afero.NewOsFs(), opts)
}

// NewSessionWithFs creates a Session on a custom filesystem.
func NewSessionWithFs(fs afero.Fs, opts Options) *Session {
	return &Session{
		pipeline: newScanPipeline(fs),
		opts:     opts,
	}
}

// Scan discovers sourceDir and resolves dates without planning or moving
// anything. The report lists unreadable files and skipped paths.
func (s *Session) Scan(ctx context.Context, sourceDir string) (*BatchReport, error) {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()

	sourceDir, targetDir, err := s.pipeline.validate(sourceDir, opts.TargetDir)
	if err != nil {
		return nil, err
	}
	opts.SourceDir, opts.TargetDir = sourceDir, targetDir

	batch, err := s.pipeline.scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	report := newBatchReport(batch, opts.DryRun)
	report.collect(batch.Records)
	report.Skipped = append(report.Skipped, batch.Skipped...)

	s.mu.Lock()
	s.batch = batch
	s.opts = opts
	s.mu.Unlock()

	logger.Info("Scan complete", "batch", batch.ID, "files", len(batch.Records), "failed", len(report.Failed))
	return report, nil
}

// Process plans, de-duplicates and moves the selected records that are still
// waiting to be moved. Records already moved or failed are left alone.
func (s *Session) Process(ctx context.Context, sel Selection) (*BatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch == nil {
		return nil, ErrNoBatch
	}

	selected := s.batch.Records
	if !sel.all {
		selected = make([]*ImageRecord, 0, len(sel.indices))
		for _, i := range sel.indices {
			if i < 0 || i >= len(s.batch.Records) {
				return nil, fmt.Errorf("selection index %d out of range (batch has %d records)", i, len(s.batch.Records))
			}
			selected = append(selected, s.batch.Records[i])
		}
	}

	logger.Info("Processing selection", "batch", s.batch.ID, "records", len(selected), "dry_run", s.opts.DryRun)
	return s.pipeline.process(ctx, s.batch, selected, s.opts)
}

// SetDryRun switches dry-run mode for subsequent Process calls.
func (s *Session) SetDryRun(dryRun bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.DryRun = dryRun
}

// Snapshot returns a deep copy of the current batch. It is empty before the first Scan.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch == nil {
		return Snapshot{}
	}
	snap := Snapshot{
		BatchID:   s.batch.ID,
		Stage:     s.batch.Stage,
		SourceDir: s.batch.SourceDir,
		Records:   make([]ImageRecord, len(s.batch.Records)),
		Skipped:   append([]string(nil), s.batch.Skipped...),
	}
	for i, record := range s.batch.Records {
		snap.Records[i] = record.clone()
	}
	return snap
}
