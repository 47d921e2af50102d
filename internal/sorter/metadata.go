package sorter

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acm19/exifsort/internal/logger"
	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/spf13/afero"
)

// Metadata is everything the extractor learned about one file.
type Metadata struct {
	// EmbeddedCaptureTime is the raw capture timestamp from the file's metadata
	// container. Empty when the container is absent or has no capture field.
	EmbeddedCaptureTime string
	// CaptureTag names the field EmbeddedCaptureTime was read from.
	CaptureTag string
	// ImageNumber is the camera's capture sequence number, 0 when absent.
	ImageNumber int64
	Timestamps
}

// HasEmbeddedCaptureTime reports whether a capture timestamp was found.
func (m Metadata) HasEmbeddedCaptureTime() bool {
	return m.EmbeddedCaptureTime != ""
}

// MetadataExtractor reads embedded and filesystem timestamps of a file.
type MetadataExtractor interface {
	// Extract opens the file read-only and returns its metadata. A missing or
	// malformed metadata container is not an error. The only error is a
	// KindIO error when the file cannot be opened.
	Extract(path string) (Metadata, error)
	// Close releases helper processes.
	Close() error
}

// embedded is the result of one embedded-metadata reader.
type embedded struct {
	captureTime string
	captureTag  string
	imageNumber int64
}

func (e embedded) complete() bool {
	return e.captureTime != ""
}

// embeddedReader reads the embedded metadata container of a file.
type embeddedReader interface {
	readEmbedded(f io.Reader, path string) (embedded, error)
	name() string
}

// ImageNumber is not part of goexif's field table, it is loaded by imageNumberParser.
const (
	imageNumberField exif.FieldName = "ImageNumber"
	imageNumberTag   uint16         = 0x9211
)

var captureFields = []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized}

var registerParsers sync.Once

// imageNumberParser loads the ImageNumber tag from the Exif sub-IFD.
type imageNumberParser struct{}

func (imageNumberParser) Parse(x *exif.Exif) error {
	ptr, err := x.Get(exif.ExifIFDPointer)
	if err != nil {
		return nil
	}
	offset, err := ptr.Int64(0)
	if err != nil {
		return nil
	}

	r := bytes.NewReader(x.Raw)
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return nil
	}
	dir, _, err := tiff.DecodeDir(r, x.Tiff.Order)
	if err != nil {
		return nil
	}
	x.LoadTags(dir, map[uint16]exif.FieldName{imageNumberTag: imageNumberField}, false)
	return nil
}

// nativeExifReader decodes EXIF in-process with goexif.
type nativeExifReader struct{}

func newNativeExifReader() *nativeExifReader {
	registerParsers.Do(func() {
		exif.RegisterParsers(imageNumberParser{})
	})
	return &nativeExifReader{}
}

func (r *nativeExifReader) name() string {
	return "EXIF"
}

func (r *nativeExifReader) readEmbedded(f io.Reader, path string) (embedded, error) {
	x, err := exif.Decode(f)
	if err != nil {
		return embedded{}, err
	}

	var out embedded
	for _, field := range captureFields {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		val, err := tag.StringVal()
		if err != nil || val == "" {
			continue
		}
		logger.Debug("Using EXIF date field", "file", filepath.Base(path), "field", field, "date", val)
		out.captureTime = val
		out.captureTag = string(field)
		break
	}

	if tag, err := x.Get(imageNumberField); err == nil {
		if n, err := tag.Int64(0); err == nil {
			out.imageNumber = n
		}
	}
	return out, nil
}

// exiftoolReader shells out to exiftool. The process is started on first use.
type exiftoolReader struct {
	mu sync.Mutex
	et *exiftool.Exiftool
	// failed is set once starting exiftool failed, so it is not retried per file.
	failed bool
}

func newExiftoolReader() *exiftoolReader {
	return &exiftoolReader{}
}

func (r *exiftoolReader) name() string {
	return "exiftool"
}

func (r *exiftoolReader) ensure() (*exiftool.Exiftool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.et != nil {
		return r.et, nil
	}
	if r.failed {
		return nil, errors.New("exiftool unavailable")
	}

	et, err := exiftool.NewExiftool()
	if err != nil {
		r.failed = true
		logger.Warn("Failed to start exiftool, fallback disabled", "error", err)
		return nil, err
	}
	r.et = et
	return et, nil
}

func (r *exiftoolReader) readEmbedded(_ io.Reader, path string) (embedded, error) {
	et, err := r.ensure()
	if err != nil {
		return embedded{}, err
	}

	fileInfos := et.ExtractMetadata(path)
	if len(fileInfos) == 0 {
		return embedded{}, errors.New("no metadata found")
	}
	fileInfo := fileInfos[0]
	if fileInfo.Err != nil {
		return embedded{}, fileInfo.Err
	}

	var out embedded
	out.captureTag, out.captureTime = pickCaptureTime(exiftoolDateFields, fileInfo.GetString)
	if out.captureTime != "" {
		logger.Debug("Using exiftool date field", "file", filepath.Base(path), "field", out.captureTag, "date", out.captureTime)
	}
	if n, err := fileInfo.GetInt("ImageNumber"); err == nil {
		out.imageNumber = n
	}
	return out, nil
}

// CreationDate before CreateDate: edited iPhone videos keep the original date there.
var exiftoolDateFields = []string{"DateTimeOriginal", "CreationDate", "CreateDate"}

// pickCaptureTime returns the first field whose value parses. When none does,
// the first non-empty value is returned so the parse failure stays visible.
func pickCaptureTime(fields []string, get func(string) (string, error)) (string, string) {
	var firstTag, firstVal string
	for _, field := range fields {
		val, err := get(field)
		if err != nil || val == "" {
			continue
		}
		if _, err := parseCaptureTime(val); err == nil {
			return field, val
		}
		if firstVal == "" {
			firstTag, firstVal = field, val
		}
	}
	return firstTag, firstVal
}

func (r *exiftoolReader) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.et == nil {
		return nil
	}
	err := r.et.Close()
	r.et = nil
	return err
}

type metadataExtractor struct {
	fs         afero.Fs
	extensions Extensions
	native     embeddedReader
	fallback   *exiftoolReader
	timestamps timestampReader
}

// NewMetadataExtractor creates a MetadataExtractor reading through fs. When
// useExiftool is set, files the native parser cannot date are passed to exiftool.
func NewMetadataExtractor(fs afero.Fs, useExiftool bool) MetadataExtractor {
	e := &metadataExtractor{
		fs:         fs,
		extensions: NewExtensions(),
		native:     newNativeExifReader(),
		timestamps: newTimestampReader(fs),
	}
	if useExiftool {
		e.fallback = newExiftoolReader()
	}
	return e
}

func (e *metadataExtractor) Extract(path string) (Metadata, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return Metadata{}, newError(KindIO, path, err)
	}
	defer f.Close()

	var meta Metadata
	var found embedded
	if e.extensions.HasNativeExif(path) {
		found, err = e.native.readEmbedded(f, path)
		if err != nil {
			logger.Debug("No embedded metadata", "reader", e.native.name(), "file", filepath.Base(path), "error", err)
		}
	}

	if !found.complete() && e.fallback != nil {
		more, err := e.fallback.readEmbedded(nil, path)
		if err != nil {
			logger.Debug("No embedded metadata", "reader", e.fallback.name(), "file", filepath.Base(path), "error", err)
		} else {
			if found.imageNumber == 0 {
				found.imageNumber = more.imageNumber
			}
			found.captureTime, found.captureTag = more.captureTime, more.captureTag
		}
	}

	meta.EmbeddedCaptureTime = strings.TrimRight(found.captureTime, "\x00")
	meta.CaptureTag = found.captureTag
	meta.ImageNumber = found.imageNumber

	ts, err := e.timestamps.readTimestamps(path)
	if err != nil {
		logger.Warn("Failed to read filesystem timestamps", "file", path, "error", err)
	} else {
		meta.Timestamps = ts
	}
	return meta, nil
}

func (e *metadataExtractor) Close() error {
	if e.fallback == nil {
		return nil
	}
	return e.fallback.close()
}
