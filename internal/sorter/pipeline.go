package sorter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ScanPipeline sorts a directory tree into date-based directories.
type ScanPipeline interface {
	// Run scans opts.SourceDir and moves (or previews) every supported file.
	// Only setup errors (KindInvalidSourceDirectory, an unusable target) and
	// context cancellation are returned as errors; per-file failures are
	// reported in the BatchReport. On cancellation the partial report is
	// returned together with the context error.
	Run(ctx context.Context, opts Options) (*BatchReport, error)
}

// Batch is the set of records discovered by one scan.
type Batch struct {
	ID        uuid.UUID
	Stage     Stage
	SourceDir string
	Records   []*ImageRecord
	// Skipped holds discovered paths that never became records.
	Skipped []string
}

type scanPipeline struct {
	fs         afero.Fs
	extensions Extensions
	resolver   DateResolver
	// extractor overrides the per-run extractor; used by tests.
	extractor MetadataExtractor
}

// NewScanPipeline creates a ScanPipeline on the OS filesystem.
func NewScanPipeline() ScanPipeline {
	return newScanPipeline(afero.NewOsFs())
}

// NewScanPipelineWithFs creates a ScanPipeline on a custom filesystem.
func NewScanPipelineWithFs(fs afero.Fs) ScanPipeline {
	return newScanPipeline(fs)
}

func newScanPipeline(fs afero.Fs) *scanPipeline {
	return &scanPipeline{
		fs:         fs,
		extensions: NewExtensions(),
		resolver:   NewDateResolver(),
	}
}

func (p *scanPipeline) Run(ctx context.Context, opts Options) (*BatchReport, error) {
	start := time.Now()
	sourceDir, targetDir, err := p.validate(opts.SourceDir, opts.TargetDir)
	if err != nil {
		return nil, err
	}
	opts.SourceDir, opts.TargetDir = sourceDir, targetDir
	logger.Info("Starting run", "source", sourceDir, "target", targetDir, "dry_run", opts.DryRun)

	batch, err := p.scan(ctx, opts)
	if err != nil {
		if batch == nil {
			return nil, err
		}
		report := newBatchReport(batch, opts.DryRun)
		report.collect(batch.Records)
		report.Skipped = append(report.Skipped, batch.Skipped...)
		return report, err
	}

	report, err := p.process(ctx, batch, batch.Records, opts)
	report.Skipped = append(append([]string{}, batch.Skipped...), report.Skipped...)
	logger.Info("Run finished", "batch", batch.ID, "moved", report.Moved, "failed", len(report.Failed),
		"skipped", len(report.Skipped), "duration_seconds", time.Since(start).Seconds())
	return report, err
}

// validate checks the source directory and returns absolute, cleaned paths.
func (p *scanPipeline) validate(sourceDir, targetDir string) (string, string, error) {
	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return "", "", newError(KindInvalidSourceDirectory, sourceDir, err)
	}
	info, err := p.fs.Stat(absSource)
	if err != nil {
		return "", "", newError(KindInvalidSourceDirectory, sourceDir, err)
	}
	if !info.IsDir() {
		return "", "", newError(KindInvalidSourceDirectory, sourceDir, ErrNotADirectory)
	}

	absTarget, err := filepath.Abs(targetDir)
	if err != nil {
		return "", "", fmt.Errorf("invalid target directory %s: %w", targetDir, err)
	}
	if info, err := p.fs.Stat(absTarget); err == nil && !info.IsDir() {
		return "", "", fmt.Errorf("target %s: %w", targetDir, ErrNotADirectory)
	}
	return absSource, absTarget, nil
}

// scan builds a fresh batch: discovery, extraction and date resolution.
func (p *scanPipeline) scan(ctx context.Context, opts Options) (*Batch, error) {
	batch, err := p.discover(ctx, opts)
	if err != nil {
		return nil, err
	}

	extractor := p.extractor
	if extractor == nil {
		extractor = NewMetadataExtractor(p.fs, opts.UseExiftool)
		defer extractor.Close()
	}

	if err := p.extract(ctx, batch, extractor, opts.ProgressChan); err != nil {
		return batch, err
	}
	if err := p.resolve(ctx, batch, opts.ProgressChan); err != nil {
		return batch, err
	}
	return batch, nil
}

// discover walks the source tree depth-first in lexical order. Unreadable
// directories are skipped and noted; they never abort the walk.
func (p *scanPipeline) discover(ctx context.Context, opts Options) (*Batch, error) {
	batch := &Batch{ID: uuid.New(), Stage: StageDiscovering, SourceDir: opts.SourceDir}
	logger.Info("Discovering files", "source", opts.SourceDir, "batch", batch.ID)

	// The target is only excluded when it lies below the source; a source inside
	// the target would otherwise exclude everything.
	excluded := ""
	if !opts.IncludeTarget {
		switch {
		case isWithin(opts.SourceDir, opts.TargetDir):
			logger.Warn("Source lies inside the target directory, target exclusion disabled",
				"source", opts.SourceDir, "target", opts.TargetDir)
		case isWithin(opts.TargetDir, opts.SourceDir):
			excluded = opts.TargetDir
		}
	}

	err := afero.Walk(p.fs, opts.SourceDir, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if info != nil && info.IsDir() {
				logger.Warn("Skipping unreadable directory", "path", path, "error", err)
				batch.Skipped = append(batch.Skipped, path)
				return filepath.SkipDir
			}
			logger.Warn("Cannot access entry", "path", path, "error", err)
			record := newImageRecord(path)
			record.fail(newError(KindIO, path, err))
			batch.Records = append(batch.Records, record)
			return nil
		}

		if info.IsDir() {
			if path == opts.SourceDir {
				return nil
			}
			if strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			if excluded != "" && isWithin(path, excluded) {
				logger.Debug("Excluding target directory", "path", path)
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		if !info.Mode().IsRegular() || !p.extensions.IsSupported(path) {
			logger.Debug("Skipping unsupported file", "path", path)
			batch.Skipped = append(batch.Skipped, path)
			return nil
		}

		batch.Records = append(batch.Records, newImageRecord(path))
		emitProgress(opts.ProgressChan, StageDiscovering, len(batch.Records), 0, path)
		logger.Debug("Discovered file", "path", path)
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return nil, err
	}

	logger.Info("Discovery complete", "files", len(batch.Records), "skipped", len(batch.Skipped))
	return batch, nil
}

func (p *scanPipeline) extract(ctx context.Context, batch *Batch, extractor MetadataExtractor, progress chan<- ProgressEvent) error {
	batch.Stage = StageExtracting
	total := len(batch.Records)
	for i, record := range batch.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if record.Failed() {
			continue
		}
		emitProgress(progress, StageExtracting, i+1, total, record.SourcePath)

		meta, err := extractor.Extract(record.SourcePath)
		if err != nil {
			logger.Warn("Failed to read file", "file", record.SourcePath, "error", err)
			record.fail(err)
			continue
		}
		record.Metadata = meta
	}
	return nil
}

func (p *scanPipeline) resolve(ctx context.Context, batch *Batch, progress chan<- ProgressEvent) error {
	batch.Stage = StageResolving
	total := len(batch.Records)
	for i, record := range batch.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if record.Failed() {
			continue
		}
		emitProgress(progress, StageResolving, i+1, total, record.SourcePath)

		res, err := p.resolver.Resolve(record.SourcePath, record.Metadata)
		record.Diagnostics = append(record.Diagnostics, res.Diagnostics...)
		if err != nil {
			logger.Warn("Failed to resolve date", "file", record.SourcePath, "error", err)
			record.fail(err)
			continue
		}

		date := res.Date
		record.ResolvedDate = &date
		record.DateSource = res.Source
		record.advance(StatusResolved)
		logger.Debug("Date resolved", "file", filepath.Base(record.SourcePath), "date", date, "source", res.Source)
	}
	return nil
}

// eligible reports whether a record may still be planned and moved.
func eligible(record *ImageRecord) bool {
	return record.Status == StatusResolved || record.Status == StatusCollided
}

// process runs planning, collision resolution and moving over the selected
// records. The report covers the selected records only.
func (p *scanPipeline) process(ctx context.Context, batch *Batch, selected []*ImageRecord, opts Options) (*BatchReport, error) {
	report := newBatchReport(batch, opts.DryRun)

	chosen := make(map[*ImageRecord]bool, len(selected))
	var work []*ImageRecord
	for _, record := range selected {
		if eligible(record) && !chosen[record] {
			chosen[record] = true
		}
	}
	// Keep traversal order; moved records stay in the collision view as claims.
	var claims []*ImageRecord
	for _, record := range batch.Records {
		if chosen[record] {
			work = append(work, record)
			claims = append(claims, record)
		} else if record.Status == StatusMoved {
			claims = append(claims, record)
		}
	}

	done := make(map[*ImageRecord]bool)
	for _, record := range selected {
		if record.Status == StatusMoved {
			done[record] = true
		}
	}
	finish := func(err error) (*BatchReport, error) {
		report.collect(reportable(batch, selected, done))
		return report, err
	}

	batch.Stage = StagePlanning
	planner := NewPathPlanner(opts.TargetDir, opts.UseSubdirectory, opts.UseImageNumber)
	// Targets are per pass: the disk may have changed since an earlier preview.
	for _, record := range work {
		record.resetPlan()
	}
	for i, record := range work {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		emitProgress(opts.ProgressChan, StagePlanning, i+1, len(work), record.SourcePath)
		if err := planner.Plan(record); err != nil {
			record.fail(newError(KindMoveIO, record.SourcePath, err))
		}
	}

	batch.Stage = StageColliding
	emitProgress(opts.ProgressChan, StageColliding, len(work), len(work), "")
	collisions := NewCollisionResolver(p.fs, !opts.DryRun)
	if renamed := collisions.Resolve(claims); renamed > 0 {
		logger.Info("Renamed colliding files", "count", renamed)
	}

	batch.Stage = StageMoving
	mover := NewMover(p.fs)
	for i, record := range work {
		if err := ctx.Err(); err != nil {
			logger.Warn("Processing cancelled", "processed", i, "total", len(work))
			return finish(err)
		}
		if record.Failed() {
			continue
		}
		emitProgress(opts.ProgressChan, StageMoving, i+1, len(work), record.SourcePath)

		plan, err := mover.Move(record, opts.DryRun)
		if err != nil {
			logger.Warn("Failed to move file", "file", record.SourcePath, "error", err)
			continue
		}
		if opts.DryRun && !record.InPlace {
			report.Planned = append(report.Planned, plan)
		}
	}

	batch.Stage = StageDone
	return finish(nil)
}

// reportable returns the selected records in traversal order, including those
// that failed before they could be processed. Records moved by an earlier step
// are left out.
func reportable(batch *Batch, selected []*ImageRecord, done map[*ImageRecord]bool) []*ImageRecord {
	in := make(map[*ImageRecord]bool, len(selected))
	for _, record := range selected {
		in[record] = !done[record]
	}
	var out []*ImageRecord
	for _, record := range batch.Records {
		if in[record] {
			out = append(out, record)
		}
	}
	return out
}

// isWithin reports whether path equals dir or lies below it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
