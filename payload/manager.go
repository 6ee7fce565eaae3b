// Package payload converts between an on-disk directory tree and the
// ordered, chunked, checksummed byte stream exchanged by the transfer
// engine.
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/localshare/limits"
)

// Mode is the Manager's current transfer direction.
type Mode uint8

const (
	// Closed is the Manager's state before a transfer starts and after one
	// finishes successfully.
	Closed Mode = iota
	// Sending indicates an active outgoing transfer.
	Sending
	// Receiving indicates an active incoming transfer.
	Receiving
)

func (m Mode) String() string {
	switch m {
	case Sending:
		return "Sending"
	case Receiving:
		return "Receiving"
	default:
		return "Closed"
	}
}

// Errors surfaced by manifest validation and the chunk/checksum contract.
var (
	ErrEmptyDirectory   = errors.New("payload: source directory contains no regular files")
	ErrInvalidOffer     = errors.New("payload: manifest failed validation")
	ErrChunkOverrun     = errors.New("payload: chunk size exceeds remaining bytes")
	ErrPrematureChecksum = errors.New("payload: checksum received before file fully transferred")
	ErrAlreadyStarted   = errors.New("payload: transfer already started")
)

// ScanOptions controls sender-side directory scanning.
type ScanOptions struct {
	// IgnoreHidden skips dotfiles and dot-directories when true.
	IgnoreHidden bool
	// Yield, if set, is called periodically during a large scan so the
	// caller's executor can service other work between batches; the
	// default is a no-op.
	Yield func()
}

// Manager owns the ordered list of Files that make up one Payload and drives
// the chunked send/receive and per-file checksum contract against them. A
// Manager is single-use: it is built once, started in Sending or Receiving
// mode, and run to completion or failure.
type Manager struct {
	PayloadRoot string
	Files       []*File
	TotalSize   int64

	mu                 sync.Mutex
	id                 uuid.UUID
	mode               Mode
	rootDir            string
	currentFile        int
	nextFileToChecksum int
	totalTransferred   int64
	nbFilesTransferred int
	chunkSize          int64
}

// SetChunkSize overrides the per-Chunk-frame byte count NextChunkSize
// hands out; n<=0 restores limits.ChunkSize. Call before StartSending or
// StartReceiving.
func (m *Manager) SetChunkSize(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkSize = n
}

func (m *Manager) chunkSizeLocked() int64 {
	if m.chunkSize > 0 {
		return m.chunkSize
	}
	return limits.ChunkSize
}

// NewManagerFromPath builds a sender-side Manager by scanning path, which
// may be a single file (PayloadRoot becomes ".") or a directory (PayloadRoot
// becomes its basename).
func NewManagerFromPath(path string, opts ScanOptions) (*Manager, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("payload: canonicalize %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, abs, err)
	}

	m := &Manager{id: uuid.New()}

	if !info.IsDir() {
		m.PayloadRoot = "."
		m.rootDir = filepath.Dir(abs)
		m.Files = []*File{NewFile(filepath.Base(abs), info.Size(), info.ModTime())}
		m.TotalSize = info.Size()
		return m, nil
	}

	m.PayloadRoot = filepath.Base(abs)
	m.rootDir = filepath.Dir(abs)

	if err := m.scanDirectory(abs, opts); err != nil {
		return nil, err
	}
	if len(m.Files) == 0 {
		return nil, ErrEmptyDirectory
	}
	return m, nil
}

func (m *Manager) scanDirectory(root string, opts ScanOptions) error {
	lastYield := time.Now()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if opts.Yield != nil && time.Since(lastYield) >= limits.MaxWorkMillis*time.Millisecond {
			opts.Yield()
			lastYield = time.Now()
		}

		if path == root {
			return nil
		}
		if opts.IgnoreHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		m.Files = append(m.Files, NewFile(filepath.ToSlash(rel), info.Size(), info.ModTime()))
		m.TotalSize += info.Size()
		return nil
	})
}

// Serialize encodes the manifest (PayloadRoot, TotalSize, file count, then
// each file's relative path and size) for embedding in an Offer frame.
// Receiver-side LastModified is never emitted: only the sender tracks it.
func (m *Manager) Serialize() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf []byte
	buf = appendString(buf, m.PayloadRoot)
	buf = appendUint64(buf, uint64(m.TotalSize))
	buf = appendUint32(buf, uint32(len(m.Files)))
	for _, f := range m.Files {
		buf = appendString(buf, f.RelativePath)
		buf = appendUint64(buf, uint64(f.Size))
	}
	return buf
}

// Deserialize builds a receiver-side Manager from a manifest produced by
// Serialize. The result has not yet been validated; call Validate before
// trusting it.
func Deserialize(data []byte) (*Manager, error) {
	root, rest, err := readString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload_root: %v", ErrInvalidOffer, err)
	}
	totalSize, rest, err := readUint64(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: total_size: %v", ErrInvalidOffer, err)
	}
	count, rest, err := readUint32(rest)
	if err != nil {
		return nil, fmt.Errorf("%w: file_count: %v", ErrInvalidOffer, err)
	}

	m := &Manager{
		id:          uuid.New(),
		PayloadRoot: root,
		TotalSize:   int64(totalSize),
	}
	for i := uint32(0); i < count; i++ {
		var relPath string
		var size uint64
		relPath, rest, err = readString(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: file[%d].relative_path: %v", ErrInvalidOffer, i, err)
		}
		size, rest, err = readUint64(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: file[%d].size: %v", ErrInvalidOffer, i, err)
		}
		m.Files = append(m.Files, NewFile(relPath, int64(size), time.Time{}))
	}
	return m, nil
}

// Validate checks the manifest's invariants before any data is read from
// the socket: a non-negative total size, a single-segment PayloadRoot free
// of traversal, a non-empty file list, and every file's relative path
// confined to the payload root.
func (m *Manager) Validate() error {
	if m.TotalSize < 0 {
		return fmt.Errorf("%w: negative total_size", ErrInvalidOffer)
	}
	if strings.ContainsAny(m.PayloadRoot, "/\\") {
		return fmt.Errorf("%w: payload_root contains a path separator", ErrInvalidOffer)
	}
	if m.PayloadRoot != "." && strings.Contains(m.PayloadRoot, "..") {
		return fmt.Errorf("%w: payload_root contains '..'", ErrInvalidOffer)
	}
	if len(m.Files) == 0 {
		return fmt.Errorf("%w: empty file list", ErrInvalidOffer)
	}
	for _, f := range m.Files {
		if err := validateRelativePath(f.RelativePath); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidOffer, f.RelativePath, err)
		}
	}
	return nil
}

func validateRelativePath(p string) error {
	if p == "" {
		return errors.New("empty path")
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return errors.New("absolute path")
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return errors.New("contains '..'")
		}
	}
	return nil
}

// StartSending transitions the Manager into Sending mode, resetting all
// progress counters. The sender-side root_dir was already fixed when the
// Manager was built from a source path.
func (m *Manager) StartSending() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != Closed {
		return ErrAlreadyStarted
	}
	m.mode = Sending
	m.resetCountersLocked()
	return nil
}

// StartReceiving is the receiver-side counterpart of StartSending. targetDir
// is target_dir/payload_root; files are written under it.
func (m *Manager) StartReceiving(targetDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != Closed {
		return ErrAlreadyStarted
	}
	m.rootDir = targetDir
	m.mode = Receiving
	m.resetCountersLocked()
	return nil
}

func (m *Manager) resetCountersLocked() {
	m.currentFile = 0
	m.nextFileToChecksum = 0
	m.totalTransferred = 0
	m.nbFilesTransferred = 0
}

// RootDir returns the filesystem directory enclosing the payload on this
// side: the scanned source directory's parent on the sender, or
// target_dir/payload_root once StartReceiving has been called.
func (m *Manager) RootDir() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rootDir
}

// TotalTransferred returns the cumulative byte count processed so far.
func (m *Manager) TotalTransferred() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTransferred
}

// NbFilesTransferred returns the number of files fully read or written.
func (m *Manager) NbFilesTransferred() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nbFilesTransferred
}

// Done reports whether every byte and every checksum has been processed.
func (m *Manager) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTransferred >= m.TotalSize && m.nextFileToChecksum >= len(m.Files)
}

// NextChunkSize returns min(ChunkSize, TotalSize-TotalTransferred); zero
// once the transfer is fully sent.
func (m *Manager) NextChunkSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextChunkSizeLocked()
}

func (m *Manager) nextChunkSizeLocked() int64 {
	remaining := m.TotalSize - m.totalTransferred
	if remaining <= 0 {
		return 0
	}
	if cs := m.chunkSizeLocked(); remaining > cs {
		return cs
	}
	return remaining
}

func (m *Manager) ensureCurrentOpenLocked() (*File, error) {
	if m.currentFile >= len(m.Files) {
		return nil, errors.New("payload: no files remain")
	}
	f := m.Files[m.currentFile]
	if !f.opened {
		mode := ReadOnly
		if m.mode == Receiving {
			mode = ReadWrite
		}
		if err := f.Open(m.rootDir, mode); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (m *Manager) advanceIfFileDoneLocked(f *File) {
	if !f.Done() {
		return
	}
	f.Close()
	m.currentFile++
	m.nbFilesTransferred++
}

// SendNextChunk writes exactly NextChunkSize bytes to w, spanning as many
// files as needed and closing each as its last byte is consumed.
func (m *Manager) SendNextChunk(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.nextChunkSizeLocked()
	if size == 0 {
		return nil
	}

	buf := make([]byte, size)
	var written int64
	for written < size {
		f, err := m.ensureCurrentOpenLocked()
		if err != nil {
			return err
		}
		want := size - written
		if max := f.Size - f.posSnapshot(); max < want {
			want = max
		}
		if want == 0 {
			m.advanceIfFileDoneLocked(f)
			continue
		}

		n, err := f.ReadData(buf[:want])
		if err != nil {
			return fmt.Errorf("payload: send chunk: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("payload: send chunk: short read from %s", f.RelativePath)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("payload: send chunk: short write: %w", err)
		}

		written += int64(n)
		m.totalTransferred += int64(n)
		m.advanceIfFileDoneLocked(f)
	}
	return nil
}

// ReceiveChunk is the receiver-side inverse of SendNextChunk.
func (m *Manager) ReceiveChunk(r io.Reader, chunkSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chunkSize > m.TotalSize-m.totalTransferred {
		return ErrChunkOverrun
	}
	if chunkSize <= 0 {
		return nil
	}

	buf := make([]byte, chunkSize)
	var received int64
	for received < chunkSize {
		f, err := m.ensureCurrentOpenLocked()
		if err != nil {
			return err
		}
		want := chunkSize - received
		if max := f.Size - f.posSnapshot(); max < want {
			want = max
		}
		if want == 0 {
			m.advanceIfFileDoneLocked(f)
			continue
		}

		if _, err := io.ReadFull(r, buf[:want]); err != nil {
			return fmt.Errorf("payload: receive chunk: %w", err)
		}
		n, err := f.WriteData(buf[:want])
		if err != nil {
			return fmt.Errorf("payload: receive chunk: %w", err)
		}

		received += int64(n)
		m.totalTransferred += int64(n)
		m.advanceIfFileDoneLocked(f)
	}
	return nil
}

// TakePendingChecksums returns the digest of every file whose last byte has
// been processed since the previous call, advancing next_file_to_checksum
// to meet current_file. Reaching the end of the list closes the Manager as
// a success marker.
func (m *Manager) TakePendingChecksums() ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	for m.nextFileToChecksum < m.currentFile {
		f := m.Files[m.nextFileToChecksum]
		sum, err := f.Checksum()
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
		m.nextFileToChecksum++
	}
	m.closeIfDoneLocked()
	return out, nil
}

// TestChecksums verifies checksums against the same number of files
// starting at next_file_to_checksum. A zero-length list is a benign no-op,
// logged rather than rejected.
func (m *Manager) TestChecksums(checksums [][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(checksums) == 0 {
		logrus.WithField("manager", m.id).Debug("payload: received zero-length checksums frame")
		return nil
	}

	for _, expected := range checksums {
		if m.nextFileToChecksum >= m.currentFile {
			return ErrPrematureChecksum
		}
		f := m.Files[m.nextFileToChecksum]
		ok, err := f.TestChecksum(expected)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, f.RelativePath)
		}
		m.nextFileToChecksum++
	}
	m.closeIfDoneLocked()
	return nil
}

func (m *Manager) closeIfDoneLocked() {
	if m.nextFileToChecksum >= len(m.Files) && len(m.Files) > 0 {
		m.mode = Closed
	}
}

// Stop aborts the transfer, releasing any open file and moving all cursors
// to a terminal position without marking success.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentFile < len(m.Files) {
		m.Files[m.currentFile].Close()
	}
	m.currentFile = len(m.Files)
	m.nextFileToChecksum = len(m.Files)
	m.mode = Closed
}

// --- small binary-encoding helpers shared by Serialize/Deserialize ---

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readString(buf []byte) (string, []byte, error) {
	n, rest, err := readUint32(buf)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < uint64(n) {
		return "", nil, io.ErrUnexpectedEOF
	}
	return string(rest[:n]), rest[n:], nil
}

func readUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint32(buf), buf[4:], nil
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint64(buf), buf[8:], nil
}
