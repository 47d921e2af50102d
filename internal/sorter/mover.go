package sorter

import (
	"errors"
	"fmt"
	"os"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/spf13/afero"
)

// PlannedMove is the preview of one move.
type PlannedMove struct {
	Source string
	Target string
}

// Mover executes, or previews, the move of a single record.
type Mover interface {
	// Move moves the record's source to its target. In dry-run mode nothing is
	// touched and only the preview is returned. Failures are recorded on the
	// record (StatusFailed, KindMoveIO) and also returned.
	Move(record *ImageRecord, dryRun bool) (PlannedMove, error)
}

type mover struct {
	fs afero.Fs
}

// NewMover creates a Mover operating on fs.
func NewMover(fs afero.Fs) Mover {
	return &mover{fs: fs}
}

func (m *mover) Move(record *ImageRecord, dryRun bool) (PlannedMove, error) {
	plan := PlannedMove{Source: record.SourcePath, Target: record.TargetPath()}

	if record.Status == StatusMoved || record.Failed() {
		return plan, nil
	}
	if plan.Target == "" {
		err := newError(KindMoveIO, record.SourcePath, errors.New("record has no planned target"))
		record.fail(err)
		return plan, err
	}
	if plan.Target == plan.Source {
		record.InPlace = true
		logger.Debug("File already in place", "file", plan.Source)
		return plan, nil
	}

	if dryRun {
		logger.Info("Would move", "from", plan.Source, "to", plan.Target)
		record.advance(StatusResolved)
		return plan, nil
	}

	if err := m.fs.MkdirAll(record.TargetDirectory, 0755); err != nil {
		moveErr := newError(KindMoveIO, record.SourcePath, fmt.Errorf("failed to create %s: %w", record.TargetDirectory, err))
		record.fail(moveErr)
		return plan, moveErr
	}

	// Collision resolution should make this unreachable; never overwrite anyway.
	if _, err := m.fs.Stat(plan.Target); err == nil {
		moveErr := newError(KindMoveIO, record.SourcePath, fmt.Errorf("%s: %w", plan.Target, ErrTargetExists))
		record.fail(moveErr)
		return plan, moveErr
	} else if !errors.Is(err, os.ErrNotExist) {
		moveErr := newError(KindMoveIO, record.SourcePath, fmt.Errorf("failed to check %s: %w", plan.Target, err))
		record.fail(moveErr)
		return plan, moveErr
	}

	if err := m.fs.Rename(plan.Source, plan.Target); err != nil {
		moveErr := newError(KindMoveIO, record.SourcePath, fmt.Errorf("failed to move to %s: %w", plan.Target, err))
		record.fail(moveErr)
		return plan, moveErr
	}

	record.advance(StatusMoved)
	logger.Debug("Moved file", "from", plan.Source, "to", plan.Target)
	return plan, nil
}
