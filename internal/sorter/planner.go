package sorter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// PathPlanner computes provisional targets. It never touches the filesystem.
type PathPlanner interface {
	// Plan sets TargetDirectory and TargetFilename on a resolved record.
	// It is a no-op for a record already planned in the current pass.
	Plan(record *ImageRecord) error
}

type pathPlanner struct {
	targetDir       string
	useSubdirectory bool
	useImageNumber  bool
}

// NewPathPlanner creates a PathPlanner rooted at targetDir.
func NewPathPlanner(targetDir string, useSubdirectory, useImageNumber bool) PathPlanner {
	return &pathPlanner{
		targetDir:       filepath.Clean(targetDir),
		useSubdirectory: useSubdirectory,
		useImageNumber:  useImageNumber,
	}
}

func (p *pathPlanner) Plan(record *ImageRecord) error {
	if record.planned {
		return nil
	}
	if record.ResolvedDate == nil {
		return errors.New("record has no resolved date")
	}
	date := *record.ResolvedDate

	record.TargetDirectory = p.targetDir
	if p.useSubdirectory {
		record.TargetDirectory = filepath.Join(p.targetDir, date.String())
	}
	record.TargetFilename = p.filename(record, date)
	record.planned = true
	return nil
}

// filename keeps the original name unless capture-sequence naming is enabled
// and the image carries a sequence number.
func (p *pathPlanner) filename(record *ImageRecord, date Date) string {
	if !p.useImageNumber || record.Metadata.ImageNumber <= 0 {
		return record.Filename
	}
	base := strings.ReplaceAll(date.String(), "-", "_")
	return fmt.Sprintf("%s_%05d%s", base, record.Metadata.ImageNumber, strings.ToLower(record.Extension))
}
