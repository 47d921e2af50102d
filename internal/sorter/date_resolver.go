package sorter

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/acm19/exifsort/internal/logger"
)

// Accepted layouts for embedded capture timestamps. QuickTime dates written by
// exiftool carry a UTC offset; the date is taken as written, in that offset.
const (
	CaptureTimeLayout       = "2006:01:02 15:04:05"
	CaptureTimeOffsetLayout = "2006:01:02 15:04:05Z07:00"
)

// parseCaptureTime parses s strictly under one of the capture time layouts.
func parseCaptureTime(s string) (time.Time, error) {
	t, err := time.Parse(CaptureTimeLayout, s)
	if err == nil {
		return t, nil
	}
	if t, offsetErr := time.Parse(CaptureTimeOffsetLayout, s); offsetErr == nil {
		return t, nil
	}
	return time.Time{}, err
}

// Resolution is the outcome of resolving one file's date.
type Resolution struct {
	Date   Date
	Source DateSource
	// Diagnostics holds non-fatal errors met on higher tiers, e.g. KindDateParse.
	Diagnostics []error
}

// DateResolver turns extracted metadata into a single calendar date.
type DateResolver interface {
	// Resolve applies the tier policy: embedded capture time, then filesystem
	// creation time, then filesystem modification time. It fails with
	// KindDateResolutionExhausted only when no tier yields a date; the returned
	// Resolution still carries any diagnostics in that case.
	Resolve(path string, meta Metadata) (Resolution, error)
}

// dateTier is one source consulted by the resolver.
type dateTier interface {
	// date returns ok=false when the tier has nothing to offer. A non-nil error
	// is a diagnostic and never stops resolution.
	date(path string, meta Metadata) (d Date, src DateSource, ok bool, err error)
	name() string
}

type embeddedTier struct{}

func (embeddedTier) name() string { return "embedded" }

func (embeddedTier) date(path string, meta Metadata) (Date, DateSource, bool, error) {
	if !meta.HasEmbeddedCaptureTime() {
		return Date{}, SourceNone, false, nil
	}
	t, err := parseCaptureTime(meta.EmbeddedCaptureTime)
	if err != nil {
		return Date{}, SourceNone, false, &Error{
			Kind:  KindDateParse,
			Path:  path,
			Value: meta.EmbeddedCaptureTime,
			Err:   fmt.Errorf("field %s: %w", meta.CaptureTag, err),
		}
	}
	return DateOf(t), SourceEmbedded, true, nil
}

type createdTier struct{}

func (createdTier) name() string { return "created" }

func (createdTier) date(_ string, meta Metadata) (Date, DateSource, bool, error) {
	if meta.Created.IsZero() {
		return Date{}, SourceNone, false, nil
	}
	// Without a birth time the slot holds the modification time; say so.
	if meta.CreatedFromModTime {
		return DateOf(meta.Created), SourceModified, true, nil
	}
	return DateOf(meta.Created), SourceCreated, true, nil
}

type modifiedTier struct{}

func (modifiedTier) name() string { return "modified" }

func (modifiedTier) date(_ string, meta Metadata) (Date, DateSource, bool, error) {
	if meta.Modified.IsZero() {
		return Date{}, SourceNone, false, nil
	}
	return DateOf(meta.Modified), SourceModified, true, nil
}

type dateResolver struct {
	tiers []dateTier
}

// NewDateResolver creates the three-tier DateResolver.
func NewDateResolver() DateResolver {
	return &dateResolver{
		tiers: []dateTier{
			embeddedTier{},
			createdTier{},
			modifiedTier{},
		},
	}
}

func (r *dateResolver) Resolve(path string, meta Metadata) (Resolution, error) {
	var res Resolution
	for _, tier := range r.tiers {
		d, src, ok, err := tier.date(path, meta)
		if err != nil {
			logger.Debug("Date tier failed, trying next", "tier", tier.name(), "file", filepath.Base(path), "error", err)
			res.Diagnostics = append(res.Diagnostics, err)
		}
		if ok {
			res.Date = d
			res.Source = src
			return res, nil
		}
	}
	return res, newError(KindDateResolutionExhausted, path, ErrNoTimestamps)
}
