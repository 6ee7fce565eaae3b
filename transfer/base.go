package transfer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/localshare/wire"
)

// Base is the handshake/framing machinery shared by Upload and Download.
// It owns the socket and the incremental decoder; each role embeds one
// and supplies its own frame dispatch.
type Base struct {
	mu       sync.Mutex
	id       uuid.UUID
	conn     net.Conn
	dec      *wire.Decoder
	peerName string
	lastErr  error
	log      *logrus.Entry

	tp           timeProvider
	lastActivity time.Time
	transferred  uint64
	acknowledged uint64
	ackCallback  func(uint64)

	onFailed func(error)
}

func newBase(conn net.Conn) *Base {
	id := uuid.New()
	tp := defaultTimeProvider{}
	return &Base{
		id:           id,
		conn:         conn,
		dec:          wire.NewDecoder(),
		log:          logrus.WithField("transfer", id.String()),
		tp:           tp,
		lastActivity: tp.Now(),
	}
}

// ID returns this Transfer's correlation ID, stamped into every log line
// it emits.
func (b *Base) ID() uuid.UUID { return b.id }

// OnFailed registers the callback invoked exactly once when the transfer
// fails, carrying the error that caused it.
func (b *Base) OnFailed(cb func(error)) { b.onFailed = cb }

// LastError returns the error that most recently failed this transfer,
// or nil.
func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Close closes the underlying socket. Safe to call more than once.
func (b *Base) Close() error {
	return b.conn.Close()
}

func (b *Base) sendHandshake() error {
	if _, err := b.conn.Write(wire.EncodeHandshake()); err != nil {
		return fmt.Errorf("transfer: write handshake: %w", err)
	}
	return nil
}

func (b *Base) readHandshake() error {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(b.conn, buf); err != nil {
		return fmt.Errorf("transfer: read handshake: %w", err)
	}
	magic := binary.BigEndian.Uint16(buf[0:2])
	version := binary.BigEndian.Uint16(buf[2:4])
	return wire.CheckHandshake(magic, version)
}

func (b *Base) writeFrame(f wire.Frame) error {
	encoded, err := wire.Encode(f)
	if err != nil {
		return fmt.Errorf("transfer: encode frame: %w", err)
	}
	if _, err := b.conn.Write(encoded); err != nil {
		return fmt.Errorf("transfer: write frame: %w", err)
	}
	return nil
}

// sendErrorAndClose implements the graceful-failure path: announce the
// reason, then close regardless of whether the write succeeded.
func (b *Base) sendErrorAndClose(reason string) {
	if err := b.writeFrame(wire.ErrorFrame{Text: reason}); err != nil {
		b.log.WithError(err).Debug("transfer: failed to send error frame before closing")
	}
	b.conn.Close()
}

func (b *Base) fail(err error) {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()
	b.log.WithError(err).Warn("transfer: failed")
	if b.onFailed != nil {
		b.onFailed(err)
	}
}

// readLoop reads from the socket and dispatches every fully-buffered
// frame to dispatch until dispatch or the read itself returns an error.
// A *wire.ProtocolError or *ProtocolViolation returned by dispatch aborts
// the connection without sending an Error frame, matching the protocol
// error path; readLoop itself never writes to the socket.
func (b *Base) readLoop(dispatch func(wire.Frame) error) (err error) {
	defer func() {
		if err != nil {
			b.conn.Close()
		}
	}()
	buf := make([]byte, 32*1024)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			return fmt.Errorf("transfer: socket read: %w", err)
		}
		b.dec.Feed(buf[:n])
		for {
			frame, ferr := b.dec.Next()
			if errors.Is(ferr, wire.ErrIncomplete) {
				break
			}
			if ferr != nil {
				return ferr
			}
			if err := dispatch(frame); err != nil {
				return err
			}
		}
	}
}
