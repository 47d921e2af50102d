package sorter

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/spf13/afero"
	"lukechampine.com/blake3"
)

// buildExifJPEG returns a minimal JPEG whose APP1 segment carries a big-endian
// TIFF block with an Exif sub-IFD. An empty dateTimeOriginal omits the tag, a
// zero imageNumber omits ImageNumber.
func buildExifJPEG(dateTimeOriginal string, imageNumber uint32) []byte {
	be := binary.BigEndian

	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
		data     []byte
	}
	var entries []entry
	if dateTimeOriginal != "" {
		data := append([]byte(dateTimeOriginal), 0)
		entries = append(entries, entry{tag: 0x9003, typ: 2, count: uint32(len(data)), data: data})
	}
	if imageNumber > 0 {
		entries = append(entries, entry{tag: imageNumberTag, typ: 4, count: 1, value: imageNumber})
	}

	const ifd0Offset = 8
	const ifd0Size = 2 + 12 + 4
	exifOffset := uint32(ifd0Offset + ifd0Size)
	exifSize := uint32(2 + 12*len(entries) + 4)
	dataOffset := exifOffset + exifSize

	var b bytes.Buffer
	b.WriteString("MM")
	binary.Write(&b, be, uint16(42))
	binary.Write(&b, be, uint32(ifd0Offset))

	// IFD0: only the Exif IFD pointer.
	binary.Write(&b, be, uint16(1))
	binary.Write(&b, be, uint16(0x8769))
	binary.Write(&b, be, uint16(4))
	binary.Write(&b, be, uint32(1))
	binary.Write(&b, be, exifOffset)
	binary.Write(&b, be, uint32(0))

	// Exif IFD.
	binary.Write(&b, be, uint16(len(entries)))
	var data bytes.Buffer
	for _, e := range entries {
		binary.Write(&b, be, e.tag)
		binary.Write(&b, be, e.typ)
		binary.Write(&b, be, e.count)
		if e.data != nil {
			binary.Write(&b, be, dataOffset+uint32(data.Len()))
			data.Write(e.data)
		} else {
			binary.Write(&b, be, e.value)
		}
	}
	binary.Write(&b, be, uint32(0))
	b.Write(data.Bytes())

	tiffBlock := b.Bytes()
	var jpeg bytes.Buffer
	jpeg.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&jpeg, be, uint16(2+6+len(tiffBlock)))
	jpeg.WriteString("Exif\x00\x00")
	jpeg.Write(tiffBlock)
	jpeg.Write([]byte{0xFF, 0xD9})
	return jpeg.Bytes()
}

func writeFile(t *testing.T, path string, content []byte, modTime time.Time) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("Failed to set file times: %v", err)
		}
	}
	return path
}

func writeExifJPEG(t *testing.T, path, dateTimeOriginal string, imageNumber uint32, modTime time.Time) string {
	t.Helper()
	return writeFile(t, path, buildExifJPEG(dateTimeOriginal, imageNumber), modTime)
}

func writePlainFile(t *testing.T, path string, modTime time.Time) string {
	t.Helper()
	return writeFile(t, path, []byte("test content "+filepath.Base(path)), modTime)
}

func localDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.Local)
}

// denyFs fails Open with a permission error for the listed paths, which makes
// both file reads and directory listings fail, even when tests run as root.
type denyFs struct {
	afero.Fs
	denied map[string]bool
}

func newDenyFs(paths ...string) denyFs {
	d := denyFs{Fs: afero.NewOsFs(), denied: map[string]bool{}}
	for _, p := range paths {
		d.denied[p] = true
	}
	return d
}

func (d denyFs) Open(name string) (afero.File, error) {
	if d.denied[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Open(name)
}

// fakeTimestamps serves fixed filesystem times, falling back to ModTime.
type fakeTimestamps struct {
	times    map[string]Timestamps
	fallback timestampReader
}

func (f fakeTimestamps) readTimestamps(path string) (Timestamps, error) {
	if ts, ok := f.times[path]; ok {
		return ts, nil
	}
	return f.fallback.readTimestamps(path)
}

func newTestExtractor(fs afero.Fs, times map[string]Timestamps) *metadataExtractor {
	e := NewMetadataExtractor(fs, false).(*metadataExtractor)
	e.timestamps = fakeTimestamps{times: times, fallback: fsTimeReader{fs: fs}}
	return e
}

func newTestPipeline(fs afero.Fs, times map[string]Timestamps) *scanPipeline {
	p := newScanPipeline(fs)
	p.extractor = newTestExtractor(fs, times)
	return p
}

func testOptions(source, target string) Options {
	opts := DefaultOptions()
	opts.SourceDir = source
	opts.TargetDir = target
	return opts
}

// hashTree hashes every path, mode and file content below root.
func hashTree(t *testing.T, root string) [32]byte {
	t.Helper()
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk %s: %v", root, err)
	}
	sort.Strings(paths)

	h := blake3.New(32, nil)
	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			t.Fatalf("Failed to stat %s: %v", path, err)
		}
		h.Write([]byte(path))
		h.Write([]byte(info.Mode().String()))
		if info.Mode().IsRegular() {
			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("Failed to read %s: %v", path, err)
			}
			h.Write(content)
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected %s to exist: %v", path, err)
	}
}

func assertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s to not exist, got err=%v", path, err)
	}
}
