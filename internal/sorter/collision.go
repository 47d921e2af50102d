package sorter

import (
	"fmt"
	"path/filepath"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/spf13/afero"
)

// CollisionResolver makes planned targets unique across a batch.
type CollisionResolver interface {
	// Resolve walks records in traversal order. The first record claiming a
	// target keeps it; later ones get a counter suffix on the filename stem
	// (photo.jpg, photo_1.jpg, photo_2.jpg). When the resolver checks the disk,
	// a target already present outside the batch counts as a claim too.
	// Resolve is idempotent and returns the number of renamed records.
	Resolve(records []*ImageRecord) int
}

type collisionResolver struct {
	fs        afero.Fs
	checkDisk bool
}

// NewCollisionResolver creates a CollisionResolver. checkDisk must be false in
// dry-run mode.
func NewCollisionResolver(fs afero.Fs, checkDisk bool) CollisionResolver {
	return &collisionResolver{
		fs:        fs,
		checkDisk: checkDisk,
	}
}

func (c *collisionResolver) Resolve(records []*ImageRecord) int {
	claimed := make(map[string]bool, len(records))
	renamed := 0

	// Moved and in-place records already sit on their target, wherever they
	// appear in the batch.
	for _, record := range records {
		if settled(record) {
			claimed[record.TargetPath()] = true
		}
	}

	for _, record := range records {
		if record.Failed() || record.TargetFilename == "" || settled(record) {
			continue
		}
		target := record.TargetPath()

		if !c.taken(claimed, target) {
			claimed[target] = true
			continue
		}

		if record.renamed {
			logger.Warn("Target still collides after rename", "file", record.SourcePath, "target", target)
			claimed[target] = true
			continue
		}

		name := c.disambiguate(claimed, record.TargetDirectory, record.TargetFilename)
		logger.Debug("Resolved collision", "file", record.SourcePath, "from", record.TargetFilename, "to", name)
		record.TargetFilename = name
		record.renamed = true
		record.advance(StatusCollided)
		claimed[record.TargetPath()] = true
		renamed++
	}
	return renamed
}

func settled(record *ImageRecord) bool {
	if record.Failed() || record.TargetFilename == "" {
		return false
	}
	return record.Status == StatusMoved || record.TargetPath() == record.SourcePath
}

func (c *collisionResolver) taken(claimed map[string]bool, target string) bool {
	if claimed[target] {
		return true
	}
	if !c.checkDisk {
		return false
	}
	exists, err := afero.Exists(c.fs, target)
	if err != nil {
		// Unknown state is treated as occupied.
		logger.Debug("Failed to check target", "target", target, "error", err)
		return true
	}
	return exists
}

func (c *collisionResolver) disambiguate(claimed map[string]bool, dir, filename string) string {
	ext := filepath.Ext(filename)
	base := stem(filename)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !c.taken(claimed, filepath.Join(dir, candidate)) {
			return candidate
		}
	}
}
