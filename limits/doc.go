// Package limits centralizes the wire and scheduling constants shared by the
// payload, wire, transfer, and notify packages.
//
// # Size hierarchy
//
//   - ChunkSize (10000 bytes): the unit of data moved by one Chunk frame.
//     Chunks are not aligned to file boundaries; a single chunk may span
//     several files in a payload.
//
//   - WriteBufferSize (100000 bytes): how many bytes an Upload's refill
//     loop writes between yields to the scheduler. Memory stays bounded
//     because each socket Write blocks until the peer drains it.
//
// # Scheduling
//
//   - MaxWorkMillis bounds the wall-clock time the sender-side directory
//     scan spends between calls to its Yield hook; no other loop uses it.
//   - ProgressUpdateInterval / RateUpdateInterval govern the Notifier's
//     throttled progress signal and periodic instant-rate timer.
//
// # Protocol
//
//   - WireMagic and WireVersion are the fixed handshake values; a mismatch on
//     either is a protocol-level failure (see the wire package).
package limits
