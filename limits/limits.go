// Package limits provides centralized wire and scheduling constants for
// localshare's transfer engine.
package limits

import (
	"errors"
	"time"
)

const (
	// ChunkSize is the number of payload bytes carried by one Chunk frame.
	ChunkSize = 10_000

	// WriteBufferSize is the number of bytes an Upload's refill loop
	// writes to the socket between yields to the Go scheduler. The loop
	// does not track bytes queued but not yet drained; the blocking socket
	// Write is what holds it back.
	WriteBufferSize = 100_000

	// MaxWorkMillis is the wall-clock budget the sender-side directory
	// scan runs before calling its ScanOptions.Yield hook. The refill loop
	// and the read loop do not consult it.
	MaxWorkMillis = 40

	// ProgressUpdateInterval throttles the Notifier's progressed() signal.
	ProgressUpdateInterval = 200 * time.Millisecond

	// RateUpdateInterval is the period of the Notifier's instant-rate timer
	// used when progress probes are sparse.
	RateUpdateInterval = 500 * time.Millisecond

	// RateWindowSpan bounds the Notifier's sliding sample window by age.
	RateWindowSpan = 2 * time.Second

	// RateWindowMinSamples bounds the sliding sample window by count, so a
	// burst of same-millisecond samples doesn't evict the window to empty.
	RateWindowMinSamples = 2

	// WireMagic identifies the localshare wire protocol on a fresh
	// connection, before any typed frame is exchanged.
	WireMagic uint16 = 0x0CAA

	// WireVersion is embedded in every message code; peers that disagree on
	// it must terminate the connection.
	WireVersion uint16 = 0x0002
)

var (
	// ErrMessageEmpty indicates an empty message was provided where a
	// non-empty one was required.
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates a message exceeds the given maximum size.
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize checks message against an arbitrary maximum, rejecting
// both the empty and the oversized case.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return ErrMessageTooLarge
	}
	return nil
}
