package wire

import "github.com/opd-ai/localshare/limits"

// Code identifies a message's type on the wire. Every code embeds the
// protocol version in its high bits so that peers running incompatible
// versions fail fast on the very first frame rather than misinterpreting
// each other's bytes.
type Code uint16

const (
	CodeError     Code = Code(limits.WireVersion<<4) | 0
	CodeOffer     Code = Code(limits.WireVersion<<4) | 1
	CodeAccept    Code = Code(limits.WireVersion<<4) | 2
	CodeReject    Code = Code(limits.WireVersion<<4) | 3
	CodeChunk     Code = Code(limits.WireVersion<<4) | 4
	CodeChecksums Code = Code(limits.WireVersion<<4) | 5
	CodeCompleted Code = Code(limits.WireVersion<<4) | 6
)

func (c Code) String() string {
	switch c {
	case CodeError:
		return "Error"
	case CodeOffer:
		return "Offer"
	case CodeAccept:
		return "Accept"
	case CodeReject:
		return "Reject"
	case CodeChunk:
		return "Chunk"
	case CodeChecksums:
		return "Checksums"
	case CodeCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// isCodeOnly reports whether c's frame carries no length-prefixed body.
func (c Code) isCodeOnly() bool {
	return c == CodeAccept || c == CodeReject || c == CodeCompleted
}

func knownCode(c Code) bool {
	switch c {
	case CodeError, CodeOffer, CodeAccept, CodeReject, CodeChunk, CodeChecksums, CodeCompleted:
		return true
	default:
		return false
	}
}
