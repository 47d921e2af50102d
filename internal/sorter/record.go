package sorter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Date is a calendar date without time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DateSource records which tier produced a resolved date.
type DateSource int

const (
	SourceNone DateSource = iota
	SourceEmbedded
	SourceCreated
	SourceModified
)

func (s DateSource) String() string {
	switch s {
	case SourceEmbedded:
		return "embedded"
	case SourceCreated:
		return "created"
	case SourceModified:
		return "modified"
	default:
		return "none"
	}
}

// Status is the lifecycle state of an ImageRecord. Transitions only move forward.
type Status int

const (
	StatusPending Status = iota
	StatusResolved
	StatusCollided
	StatusMoved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusCollided:
		return "collided"
	case StatusMoved:
		return "moved"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ImageRecord is one discovered file travelling through the pipeline.
type ImageRecord struct {
	// SourcePath is the absolute path of the file; it never changes.
	SourcePath string
	Filename   string
	// Extension includes the leading dot, case preserved.
	Extension string

	Metadata     Metadata
	ResolvedDate *Date
	DateSource   DateSource

	TargetDirectory string
	TargetFilename  string
	// InPlace is set when the planned target is the source itself; such records are not moved.
	InPlace bool

	Status Status
	// Err is set exactly when Status is StatusFailed.
	Err error
	// Diagnostics keeps non-fatal errors, e.g. an embedded timestamp that failed to parse.
	Diagnostics []error

	planned bool
	renamed bool
}

func newImageRecord(sourcePath string) *ImageRecord {
	name := filepath.Base(sourcePath)
	return &ImageRecord{
		SourcePath: sourcePath,
		Filename:   name,
		Extension:  filepath.Ext(name),
		Status:     StatusPending,
	}
}

// TargetPath joins the target directory and filename, or returns "" before planning.
func (r *ImageRecord) TargetPath() string {
	if r.TargetFilename == "" {
		return ""
	}
	return filepath.Join(r.TargetDirectory, r.TargetFilename)
}

// Failed reports whether the record ended in StatusFailed.
func (r *ImageRecord) Failed() bool {
	return r.Status == StatusFailed
}

// advance moves the record forward to s. Backward moves and moves out of a
// terminal state are ignored and reported as false.
func (r *ImageRecord) advance(s Status) bool {
	if r.Status == StatusFailed || r.Status == StatusMoved || s <= r.Status {
		return false
	}
	r.Status = s
	return true
}

func (r *ImageRecord) fail(err error) {
	if r.Status == StatusFailed || r.Status == StatusMoved {
		return
	}
	r.Status = StatusFailed
	r.Err = err
}

// resetPlan drops the targets of an earlier processing pass so the record is
// planned and de-duplicated afresh. Moved records keep theirs.
func (r *ImageRecord) resetPlan() {
	if r.Status == StatusMoved {
		return
	}
	r.TargetDirectory = ""
	r.TargetFilename = ""
	r.InPlace = false
	r.planned = false
	r.renamed = false
}

func (r *ImageRecord) clone() ImageRecord {
	c := *r
	if r.ResolvedDate != nil {
		d := *r.ResolvedDate
		c.ResolvedDate = &d
	}
	if r.Diagnostics != nil {
		c.Diagnostics = append([]error(nil), r.Diagnostics...)
	}
	return c
}

// stem returns a filename without its extension.
func stem(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
