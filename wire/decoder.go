package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/localshare/limits"
)

// Decoder accumulates bytes read off a connection and hands back one
// fully-buffered Frame at a time. It holds no reference to the
// connection itself; the caller owns reading and feeds bytes in via Feed.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly read bytes to the Decoder's internal buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered reports how many bytes are waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// NextHandshake consumes the 4-byte magic|version preamble. It returns
// ErrIncomplete, without consuming anything, until 4 bytes are buffered.
func (d *Decoder) NextHandshake() (magic, version uint16, err error) {
	if len(d.buf) < 4 {
		return 0, 0, ErrIncomplete
	}
	magic = binary.BigEndian.Uint16(d.buf[0:2])
	version = binary.BigEndian.Uint16(d.buf[2:4])
	d.buf = d.buf[4:]
	return magic, version, nil
}

// Next attempts to decode one Frame from the buffered bytes. It returns
// ErrIncomplete (consuming nothing) when the buffer does not yet hold a
// complete frame, or a *ProtocolError for an unknown code or malformed
// length prefix.
func (d *Decoder) Next() (Frame, error) {
	if len(d.buf) < 2 {
		return nil, ErrIncomplete
	}
	code := Code(binary.BigEndian.Uint16(d.buf[0:2]))
	if !knownCode(code) {
		return nil, newProtocolError("UnknownCode", fmt.Sprintf("code %#04x", uint16(code)))
	}

	if code.isCodeOnly() {
		d.buf = d.buf[2:]
		switch code {
		case CodeAccept:
			return AcceptFrame{}, nil
		case CodeReject:
			return RejectFrame{}, nil
		default:
			return CompletedFrame{}, nil
		}
	}

	return d.nextLengthPrefixed(code)
}

func (d *Decoder) nextLengthPrefixed(code Code) (Frame, error) {
	if len(d.buf) < 6 {
		return nil, ErrIncomplete
	}
	size := binary.BigEndian.Uint32(d.buf[2:6])
	if size == 0 && code != CodeChecksums {
		return nil, newProtocolError("BadMessageSize", "zero payload_size")
	}

	total := 6 + int(size)
	if len(d.buf) < total {
		return nil, ErrIncomplete
	}
	payload := d.buf[6:total]
	d.buf = d.buf[total:]

	switch code {
	case CodeError:
		return ErrorFrame{Text: string(payload)}, nil

	case CodeOffer:
		username, manifest, err := readBytes(payload)
		if err != nil {
			return nil, newProtocolError("BadMessageSize", "offer username: "+err.Error())
		}
		return OfferFrame{Username: string(username), Manifest: append([]byte(nil), manifest...)}, nil

	case CodeChunk:
		return ChunkFrame{Data: append([]byte(nil), payload...)}, nil

	case CodeChecksums:
		var digests [][]byte
		rest := payload
		for len(rest) > 0 {
			var digest []byte
			var err error
			digest, rest, err = readBytes(rest)
			if err != nil {
				return nil, newProtocolError("BadMessageSize", "checksums: "+err.Error())
			}
			digests = append(digests, append([]byte(nil), digest...))
		}
		return ChecksumsFrame{Digests: digests}, nil
	}

	panic("wire: unreachable code in nextLengthPrefixed")
}

// CheckHandshake validates a decoded handshake against this build's
// constants, distinguishing the abort-worthy magic mismatch from the
// graceful-failure version mismatch.
func CheckHandshake(magic, version uint16) error {
	if magic != limits.WireMagic {
		return ErrWrongMagic
	}
	if version != limits.WireVersion {
		return ErrWrongVersion
	}
	return nil
}
