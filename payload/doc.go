// Package payload converts an on-disk directory tree (or single file) into
// an ordered, checksummed byte stream suitable for transfer over a wire
// connection, and back again.
//
// # Overview
//
// Two types do the work:
//
//   - File: one entry in the payload — a relative path, a size, and (on the
//     sender) a last-modified snapshot used to detect local changes before
//     the bytes are actually read. A File is opened lazily, streamed through
//     in order, and closed once its last byte has passed through.
//
//   - Manager: the ordered list of Files plus the chunking and checksum
//     bookkeeping that drives a transfer. A Manager is single-use: built
//     once from a source path (sender) or a deserialized manifest
//     (receiver), started in Sending or Receiving mode, and run to
//     completion or failure.
//
// # Sender-side construction
//
//	mgr, err := payload.NewManagerFromPath("/home/alice/photos", payload.ScanOptions{IgnoreHidden: true})
//
// # Receiver-side construction
//
//	mgr, err := payload.Deserialize(manifestBytes)
//	if err := mgr.Validate(); err != nil { ... }
//
// # Chunking
//
// Chunks do not align to file boundaries. A sender drains
// NextChunkSize/SendNextChunk in a loop; a receiver mirrors it with
// ReceiveChunk. TakePendingChecksums/TestChecksums carry per-file MD5
// digests alongside the raw bytes.
package payload
