package sorter

import (
	"fmt"

	"github.com/acm19/exifsort/internal/logger"
)

// Options holds configuration options for a sorting run.
type Options struct {
	// SourceDir is the directory tree to scan.
	SourceDir string
	// TargetDir is the base directory files are moved into.
	TargetDir string
	// IncludeTarget also scans the target directory when it lies inside SourceDir.
	IncludeTarget bool
	// DryRun computes and reports the planned moves without touching the filesystem.
	DryRun bool
	// UseSubdirectory groups files into YYYY-MM-DD directories below TargetDir.
	UseSubdirectory bool
	// UseImageNumber renames files after their EXIF ImageNumber when present.
	UseImageNumber bool
	// UseExiftool enables the exiftool fallback for containers the native parser cannot read.
	UseExiftool bool
	// ProgressChan is an optional channel for receiving progress events.
	ProgressChan chan<- ProgressEvent
}

// DefaultOptions returns the default sorting options.
func DefaultOptions() Options {
	return Options{
		SourceDir:       ".",
		TargetDir:       "./sorted",
		IncludeTarget:   false,
		DryRun:          false,
		UseSubdirectory: true,
		UseImageNumber:  false,
		UseExiftool:     false,
		ProgressChan:    nil,
	}
}

// Stage is a step of the per-batch state machine.
type Stage string

const (
	StageDiscovering Stage = "discovering"
	StageExtracting  Stage = "extracting"
	StageResolving   Stage = "resolving"
	StagePlanning    Stage = "planning"
	StageColliding   Stage = "colliding"
	StageMoving      Stage = "moving"
	StageDone        Stage = "done"
)

// ProgressEvent represents a progress update during a sorting run.
type ProgressEvent struct {
	// Stage indicates the current processing stage.
	Stage Stage
	// Current is the number of items processed so far.
	Current int
	// Total is the total number of items to process (0 while discovering).
	Total int
	// Message is a human-readable description of the current operation.
	Message string
	// File is the path of the file currently being processed.
	File string
}

// emitProgress sends an event without ever blocking the pipeline.
func emitProgress(ch chan<- ProgressEvent, stage Stage, current, total int, file string) {
	if ch == nil {
		return
	}

	msg := fmt.Sprintf("%s file %d of %d", stage, current, total)
	if total == 0 {
		msg = fmt.Sprintf("%s file %d", stage, current)
	}

	select {
	case ch <- ProgressEvent{
		Stage:   stage,
		Current: current,
		Total:   total,
		Message: msg,
		File:    file,
	}:
	default:
		logger.Debug("Progress event dropped (channel full)", "stage", stage)
	}
}
