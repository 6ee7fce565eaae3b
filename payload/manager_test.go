package payload

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestNewManagerFromPath_SingleFile(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "hello.txt", []byte("hello world"))

	mgr, err := NewManagerFromPath(filepath.Join(dir, "hello.txt"), ScanOptions{})
	require.NoError(t, err)

	assert.Equal(t, ".", mgr.PayloadRoot)
	require.Len(t, mgr.Files, 1)
	assert.Equal(t, "hello.txt", mgr.Files[0].RelativePath)
	assert.EqualValues(t, 11, mgr.TotalSize)
}

func TestNewManagerFromPath_Directory(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "photos")
	writeTempFile(t, root, "a.jpg", bytes.Repeat([]byte{1}, 100))
	writeTempFile(t, root, "sub/b.jpg", bytes.Repeat([]byte{2}, 200))
	writeTempFile(t, root, ".hidden", []byte("secret"))

	mgr, err := NewManagerFromPath(root, ScanOptions{IgnoreHidden: true})
	require.NoError(t, err)

	assert.Equal(t, "photos", mgr.PayloadRoot)
	assert.EqualValues(t, 300, mgr.TotalSize)
	require.Len(t, mgr.Files, 2)
	for _, f := range mgr.Files {
		assert.NotContains(t, f.RelativePath, ".hidden")
	}
}

func TestNewManagerFromPath_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(root, 0o755))

	_, err := NewManagerFromPath(root, ScanOptions{})
	assert.ErrorIs(t, err, ErrEmptyDirectory)
}

func TestManager_SerializeDeserializeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "docs/a.txt", []byte("aaa"))
	writeTempFile(t, dir, "docs/b.txt", []byte("bb"))

	mgr, err := NewManagerFromPath(filepath.Join(dir, "docs"), ScanOptions{})
	require.NoError(t, err)

	wire := mgr.Serialize()
	decoded, err := Deserialize(wire)
	require.NoError(t, err)
	require.NoError(t, decoded.Validate())

	assert.Equal(t, mgr.PayloadRoot, decoded.PayloadRoot)
	assert.Equal(t, mgr.TotalSize, decoded.TotalSize)
	require.Len(t, decoded.Files, len(mgr.Files))
	for i, f := range mgr.Files {
		assert.Equal(t, f.RelativePath, decoded.Files[i].RelativePath)
		assert.Equal(t, f.Size, decoded.Files[i].Size)
		assert.True(t, decoded.Files[i].LastModified.IsZero())
	}
}

func TestManager_Validate_RejectsPathEscape(t *testing.T) {
	mgr := &Manager{
		PayloadRoot: "docs",
		TotalSize:   3,
		Files:       []*File{NewFile("../escape.txt", 3, time.Time{})},
	}
	assert.ErrorIs(t, mgr.Validate(), ErrInvalidOffer)
}

func TestManager_Validate_RejectsTraversalInPayloadRoot(t *testing.T) {
	mgr := &Manager{PayloadRoot: "../outside", Files: []*File{NewFile("a", 1, time.Time{})}, TotalSize: 1}
	assert.ErrorIs(t, mgr.Validate(), ErrInvalidOffer)
}

func TestManager_Validate_RejectsEmptyFileList(t *testing.T) {
	mgr := &Manager{PayloadRoot: "."}
	assert.ErrorIs(t, mgr.Validate(), ErrInvalidOffer)
}

func TestManager_SendReceiveChunk_SpansTwoFiles(t *testing.T) {
	srcDir := t.TempDir()
	writeTempFile(t, srcDir, "payload/a.bin", bytes.Repeat([]byte{0xAA}, 6))
	writeTempFile(t, srcDir, "payload/b.bin", bytes.Repeat([]byte{0xBB}, 6))

	sender, err := NewManagerFromPath(filepath.Join(srcDir, "payload"), ScanOptions{})
	require.NoError(t, err)
	require.NoError(t, sender.StartSending())

	wire := sender.Serialize()
	receiver, err := Deserialize(wire)
	require.NoError(t, err)
	require.NoError(t, receiver.Validate())

	dstDir := t.TempDir()
	require.NoError(t, receiver.StartReceiving(filepath.Join(dstDir, "payload")))

	var conn bytes.Buffer
	for sender.NextChunkSize() > 0 {
		size := sender.NextChunkSize()
		require.NoError(t, sender.SendNextChunk(&conn))
		require.NoError(t, receiver.ReceiveChunk(&conn, size))
		sums, err := sender.TakePendingChecksums()
		require.NoError(t, err)
		require.NoError(t, receiver.TestChecksums(sums))
	}

	assert.True(t, receiver.Done())
	got, err := os.ReadFile(filepath.Join(dstDir, "payload", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 6), got)
	got, err = os.ReadFile(filepath.Join(dstDir, "payload", "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xBB}, 6), got)
}

func TestManager_ChecksumContract(t *testing.T) {
	srcDir := t.TempDir()
	writeTempFile(t, srcDir, "payload/a.bin", []byte("abcdef"))

	sender, err := NewManagerFromPath(filepath.Join(srcDir, "payload"), ScanOptions{})
	require.NoError(t, err)
	require.NoError(t, sender.StartSending())

	dstDir := t.TempDir()
	receiver, err := Deserialize(sender.Serialize())
	require.NoError(t, err)
	require.NoError(t, receiver.StartReceiving(filepath.Join(dstDir, "payload")))

	var conn bytes.Buffer
	for sender.NextChunkSize() > 0 {
		size := sender.NextChunkSize()
		require.NoError(t, sender.SendNextChunk(&conn))
		require.NoError(t, receiver.ReceiveChunk(&conn, size))
	}

	sums, err := sender.TakePendingChecksums()
	require.NoError(t, err)
	require.Len(t, sums, 1)

	require.NoError(t, receiver.TestChecksums(sums))
	assert.True(t, receiver.Done())
}

func TestManager_TestChecksums_MismatchFails(t *testing.T) {
	srcDir := t.TempDir()
	writeTempFile(t, srcDir, "payload/a.bin", []byte("abcdef"))

	sender, err := NewManagerFromPath(filepath.Join(srcDir, "payload"), ScanOptions{})
	require.NoError(t, err)
	require.NoError(t, sender.StartSending())

	dstDir := t.TempDir()
	receiver, err := Deserialize(sender.Serialize())
	require.NoError(t, err)
	require.NoError(t, receiver.StartReceiving(filepath.Join(dstDir, "payload")))

	var conn bytes.Buffer
	for sender.NextChunkSize() > 0 {
		size := sender.NextChunkSize()
		require.NoError(t, sender.SendNextChunk(&conn))
		require.NoError(t, receiver.ReceiveChunk(&conn, size))
	}

	bogus := [][]byte{bytes.Repeat([]byte{0}, 16)}
	err = receiver.TestChecksums(bogus)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestManager_TestChecksums_EmptyListIsNoOp(t *testing.T) {
	mgr := &Manager{PayloadRoot: ".", Files: []*File{NewFile("a", 1, time.Time{})}, TotalSize: 1}
	assert.NoError(t, mgr.TestChecksums(nil))
}

func TestManager_ReceiveChunk_RejectsOverrun(t *testing.T) {
	mgr := &Manager{PayloadRoot: ".", Files: []*File{NewFile("a", 4, time.Time{})}, TotalSize: 4}
	require.NoError(t, mgr.StartReceiving(t.TempDir()))
	err := mgr.ReceiveChunk(bytes.NewReader(make([]byte, 100)), 100)
	assert.ErrorIs(t, err, ErrChunkOverrun)
}
