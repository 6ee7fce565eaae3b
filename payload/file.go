package payload

import (
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
)

// OpenMode selects whether a File is opened for reading (sender) or writing
// (receiver).
type OpenMode uint8

const (
	// ReadOnly opens an existing file for sending; the on-disk snapshot
	// must match the size and modification time recorded at scan time.
	ReadOnly OpenMode = iota
	// ReadWrite creates (or truncates) the destination file for receiving.
	ReadWrite
)

// Sentinel errors covering a payload.File's failure modes. Each is
// returned wrapped with a human-readable detail via %w.
var (
	ErrFileChanged      = errors.New("payload: file changed since snapshot")
	ErrPathCreation     = errors.New("payload: could not create destination path")
	ErrOpen             = errors.New("payload: could not open file")
	ErrResize           = errors.New("payload: could not resize file")
	ErrMap              = errors.New("payload: could not map file")
	ErrChecksumMismatch = errors.New("payload: checksum mismatch")
	ErrNotOpen          = errors.New("payload: file is not open")
	ErrChecksumNotReady = errors.New("payload: checksum requested before file fully transferred")
)

// File is one entry of a Payload: a relative path, a size, and the transient
// I/O state needed to stream its bytes exactly once in either direction.
//
// A zero-size File is never mapped; all reads and writes against it are
// no-ops, and its checksum is available immediately after Open.
type File struct {
	RelativePath string
	Size         int64
	LastModified time.Time // sender-side only; the zero value is never serialized

	mu       sync.Mutex
	mode     OpenMode
	opened   bool
	closed   bool
	pos      int64
	digest   hash.Hash
	fullPath string
	osFile   *os.File       // receiver-side write handle
	reader   *mmap.ReaderAt // sender-side read-only mapping; nil for zero-size files
}

// NewFile constructs a payload.File entry. lastModified is only meaningful
// on the sending side; deserialized (receiver) entries leave it zero.
func NewFile(relativePath string, size int64, lastModified time.Time) *File {
	return &File{
		RelativePath: relativePath,
		Size:         size,
		LastModified: lastModified,
	}
}

// Open prepares the file for streaming. For ReadOnly it verifies the on-disk
// snapshot still matches Size/LastModified before mapping it read-only; for
// ReadWrite it creates any missing directories, truncates the destination to
// Size, and leaves it ready for sequential WriteData calls.
func (f *File) Open(rootDir string, mode OpenMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.opened {
		return fmt.Errorf("%w: already open", ErrOpen)
	}

	f.fullPath = filepath.Join(rootDir, filepath.FromSlash(f.RelativePath))
	f.mode = mode
	f.pos = 0
	f.digest = md5.New()

	var err error
	if mode == ReadOnly {
		err = f.openReadOnly()
	} else {
		err = f.openReadWrite()
	}
	if err != nil {
		f.digest = nil
		return err
	}

	f.opened = true
	f.closed = false
	return nil
}

func (f *File) openReadOnly() error {
	info, err := os.Stat(f.fullPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpen, f.fullPath, err)
	}
	if info.Size() != f.Size || !info.ModTime().Equal(f.LastModified) {
		return fmt.Errorf("%w: %s", ErrFileChanged, f.fullPath)
	}

	if f.Size == 0 {
		return nil
	}

	reader, err := mmap.Open(f.fullPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMap, f.fullPath, err)
	}
	f.reader = reader
	return nil
}

func (f *File) openReadWrite() error {
	if dir := filepath.Dir(f.fullPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPathCreation, dir, err)
		}
	}

	file, err := os.OpenFile(f.fullPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpen, f.fullPath, err)
	}

	if f.Size > 0 {
		if err := file.Truncate(f.Size); err != nil {
			file.Close()
			return fmt.Errorf("%w: %s: %v", ErrResize, f.fullPath, err)
		}
	}

	f.osFile = file
	return nil
}

// ReadData copies min(len(sink), Size-pos) bytes from the current cursor
// into sink, folds them into the running hash, and advances the cursor. It
// is only valid on a ReadOnly File.
func (f *File) ReadData(sink []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened || f.closed {
		return 0, ErrNotOpen
	}
	if f.mode != ReadOnly {
		return 0, errors.New("payload: cannot read a ReadWrite file")
	}

	n := f.remainingLocked()
	if n > int64(len(sink)) {
		n = int64(len(sink))
	}
	if n == 0 {
		return 0, nil
	}

	if _, err := f.reader.ReadAt(sink[:n], f.pos); err != nil && err != io.EOF {
		return 0, fmt.Errorf("payload: read %s: %w", f.RelativePath, err)
	}

	f.digest.Write(sink[:n])
	f.pos += n
	f.closeIfDoneLocked()
	return int(n), nil
}

// WriteData is the receiver-side inverse of ReadData.
func (f *File) WriteData(source []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.opened || f.closed {
		return 0, ErrNotOpen
	}
	if f.mode != ReadWrite {
		return 0, errors.New("payload: cannot write a ReadOnly file")
	}

	n := f.remainingLocked()
	if n > int64(len(source)) {
		n = int64(len(source))
	}
	if n == 0 {
		return 0, nil
	}

	if _, err := f.osFile.WriteAt(source[:n], f.pos); err != nil {
		return 0, fmt.Errorf("payload: write %s: %w", f.RelativePath, err)
	}

	f.digest.Write(source[:n])
	f.pos += n
	f.closeIfDoneLocked()
	return int(n), nil
}

// posSnapshot returns the current read/write cursor position.
func (f *File) posSnapshot() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *File) remainingLocked() int64 {
	remaining := f.Size - f.pos
	if remaining < 0 {
		return 0
	}
	return remaining
}

// closeIfDoneLocked releases OS resources as soon as the last byte has
// passed through, while keeping the digest and cursor available for
// Checksum/TestChecksum. Caller must hold f.mu.
func (f *File) closeIfDoneLocked() {
	if f.pos < f.Size || f.closed {
		return
	}
	f.releaseLocked()
}

func (f *File) releaseLocked() {
	if f.reader != nil {
		if err := f.reader.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"path":  f.RelativePath,
				"error": err.Error(),
			}).Warn("payload: failed to unmap file")
		}
		f.reader = nil
	}
	if f.osFile != nil {
		if err := f.osFile.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"path":  f.RelativePath,
				"error": err.Error(),
			}).Warn("payload: failed to close file handle")
		}
		f.osFile = nil
	}
	f.closed = true
}

// Checksum returns the running digest. It is only meaningful once pos has
// reached Size; callers should treat an earlier call as a programming error.
func (f *File) Checksum() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.digest == nil || f.pos < f.Size {
		return nil, ErrChecksumNotReady
	}
	return f.digest.Sum(nil), nil
}

// TestChecksum reports whether the current digest equals expected.
func (f *File) TestChecksum(expected []byte) (bool, error) {
	actual, err := f.Checksum()
	if err != nil {
		return false, err
	}
	if len(actual) != len(expected) {
		return false, nil
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false, nil
		}
	}
	return true, nil
}

// Done reports whether every byte of the file has been read or written.
func (f *File) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened && f.pos >= f.Size
}

// Close releases any mapping and file handle. Safe to call multiple times
// and on a File that was never opened.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseLocked()
	return nil
}
