package sorter

import (
	"path/filepath"
	"slices"
	"strings"
)

// Extensions defines which files the sorter picks up and how it reads them.
type Extensions interface {
	// IsImage returns true if the file extension is a supported image format.
	IsImage(filePath string) bool
	// IsVideo returns true if the file extension is a supported video format.
	IsVideo(filePath string) bool
	// IsSupported returns true if the file extension is any supported media format.
	IsSupported(filePath string) bool
	// HasNativeExif returns true for formats whose EXIF block the native parser can decode.
	HasNativeExif(filePath string) bool
}

type extensions struct {
	imageExts  []string
	videoExts  []string
	nativeExts []string
}

// NewExtensions creates a new Extensions instance.
func NewExtensions() Extensions {
	return &extensions{
		imageExts: []string{
			".jpg", ".jpeg", ".heic", ".heif", ".png", ".tif", ".tiff",
			".nef", ".cr2", ".cr3", ".arw", ".dng", ".raf", ".orf", ".rw2",
		},
		videoExts: []string{".mov", ".mp4"},
		// TIFF-based raw formats start with a plain TIFF header.
		nativeExts: []string{".jpg", ".jpeg", ".tif", ".tiff", ".nef", ".cr2", ".arw", ".dng"},
	}
}

func lowerExt(filePath string) string {
	return strings.ToLower(filepath.Ext(filePath))
}

func (e *extensions) IsImage(filePath string) bool {
	return slices.Contains(e.imageExts, lowerExt(filePath))
}

func (e *extensions) IsVideo(filePath string) bool {
	return slices.Contains(e.videoExts, lowerExt(filePath))
}

func (e *extensions) IsSupported(filePath string) bool {
	return e.IsImage(filePath) || e.IsVideo(filePath)
}

func (e *extensions) HasNativeExif(filePath string) bool {
	return slices.Contains(e.nativeExts, lowerExt(filePath))
}
