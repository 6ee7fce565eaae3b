package wire

// Frame is the sum type of messages exchanged after the handshake. Each
// concrete type corresponds to exactly one Code.
type Frame interface {
	frameCode() Code
}

// ErrorFrame carries a human-readable failure description, sent by
// whichever side detects a graceful failure before closing the socket.
type ErrorFrame struct {
	Text string
}

func (ErrorFrame) frameCode() Code { return CodeError }

// OfferFrame announces a payload: the sender's username and the
// serialised manifest (see the payload package).
type OfferFrame struct {
	Username string
	Manifest []byte
}

func (OfferFrame) frameCode() Code { return CodeOffer }

// AcceptFrame is the receiver's affirmative answer to an Offer.
type AcceptFrame struct{}

func (AcceptFrame) frameCode() Code { return CodeAccept }

// RejectFrame is the receiver's negative answer to an Offer.
type RejectFrame struct{}

func (RejectFrame) frameCode() Code { return CodeReject }

// ChunkFrame carries raw payload bytes, unaligned to file boundaries.
type ChunkFrame struct {
	Data []byte
}

func (ChunkFrame) frameCode() Code { return CodeChunk }

// ChecksumsFrame carries the MD5 digests of every file whose last byte
// has been transferred since the previous such frame. A nil/empty
// Digests is a benign no-op.
type ChecksumsFrame struct {
	Digests [][]byte
}

func (ChecksumsFrame) frameCode() Code { return CodeChecksums }

// CompletedFrame closes out a successful transfer.
type CompletedFrame struct{}

func (CompletedFrame) frameCode() Code { return CodeCompleted }
