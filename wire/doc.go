// Package wire implements the localshare binary frame protocol: the
// magic/version handshake and the typed messages exchanged once it
// completes.
//
// Decoding is push-based: a Decoder accumulates bytes fed to it via Feed
// and hands back one fully-buffered Frame at a time from Next, returning
// ErrIncomplete (and consuming nothing) when the buffer does not yet hold
// a complete frame. Callers drive this from whatever I/O readiness
// notification their executor provides; the Decoder itself never blocks.
package wire
