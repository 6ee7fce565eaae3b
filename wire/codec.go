package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opd-ai/localshare/limits"
)

// EncodeHandshake returns the fixed 4-byte magic|version preamble sent by
// both sides as the very first bytes on a fresh connection.
func EncodeHandshake() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint16(buf[0:2], limits.WireMagic)
	binary.BigEndian.PutUint16(buf[2:4], limits.WireVersion)
	return buf
}

// Encode serialises f into its wire representation.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case ErrorFrame:
		return lengthPrefixedFrame(CodeError, []byte(v.Text)), nil
	case OfferFrame:
		payload := appendBytes(nil, []byte(v.Username))
		payload = append(payload, v.Manifest...)
		return lengthPrefixedFrame(CodeOffer, payload), nil
	case AcceptFrame:
		return codeOnlyFrameBytes(CodeAccept), nil
	case RejectFrame:
		return codeOnlyFrameBytes(CodeReject), nil
	case ChunkFrame:
		return lengthPrefixedFrame(CodeChunk, v.Data), nil
	case ChecksumsFrame:
		var payload []byte
		for _, digest := range v.Digests {
			payload = appendBytes(payload, digest)
		}
		return lengthPrefixedFrame(CodeChecksums, payload), nil
	case CompletedFrame:
		return codeOnlyFrameBytes(CodeCompleted), nil
	default:
		return nil, fmt.Errorf("wire: unknown frame type %T", f)
	}
}

func codeOnlyFrameBytes(code Code) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(code))
	return buf
}

func lengthPrefixedFrame(code Code, payload []byte) []byte {
	buf := make([]byte, 6, 6+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(code))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	return append(buf, payload...)
}

func appendBytes(buf, b []byte) []byte {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(b)))
	buf = append(buf, lenPrefix[:]...)
	return append(buf, b...)
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint32(buf)
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, io.ErrUnexpectedEOF
	}
	return buf[:n], buf[n:], nil
}
