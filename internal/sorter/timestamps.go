package sorter

import (
	"time"

	"github.com/spf13/afero"
	"gopkg.in/djherbis/times.v1"
)

// Timestamps are the filesystem times of a file.
type Timestamps struct {
	Created  time.Time
	Modified time.Time
	// CreatedFromModTime is set when the platform has no birth time and
	// Created repeats Modified.
	CreatedFromModTime bool
}

type timestampReader interface {
	readTimestamps(path string) (Timestamps, error)
}

// birthTimeReader reads birth time where the OS records one.
type birthTimeReader struct{}

func (birthTimeReader) readTimestamps(path string) (Timestamps, error) {
	ts, err := times.Stat(path)
	if err != nil {
		return Timestamps{}, err
	}

	out := Timestamps{Modified: ts.ModTime()}
	if ts.HasBirthTime() {
		out.Created = ts.BirthTime()
	} else {
		out.Created = out.Modified
		out.CreatedFromModTime = true
	}
	return out, nil
}

// fsTimeReader serves filesystems that only expose a modification time.
type fsTimeReader struct {
	fs afero.Fs
}

func (r fsTimeReader) readTimestamps(path string) (Timestamps, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return Timestamps{}, err
	}
	return Timestamps{
		Created:            info.ModTime(),
		Modified:           info.ModTime(),
		CreatedFromModTime: true,
	}, nil
}

func newTimestampReader(fs afero.Fs) timestampReader {
	if _, ok := fs.(*afero.OsFs); ok {
		return birthTimeReader{}
	}
	return fsTimeReader{fs: fs}
}
