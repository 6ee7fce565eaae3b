package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/localshare/limits"
	"github.com/opd-ai/localshare/notify"
	"github.com/opd-ai/localshare/payload"
	"github.com/opd-ai/localshare/wire"
)

// UploadStatus is the Upload role's status lifecycle.
type UploadStatus int

const (
	UploadInit UploadStatus = iota
	UploadStarting
	UploadWaitingForPeerAnswer
	UploadTransfering
	UploadCompleted
	UploadRejected
	UploadError
)

func (s UploadStatus) String() string {
	switch s {
	case UploadInit:
		return "Init"
	case UploadStarting:
		return "Starting"
	case UploadWaitingForPeerAnswer:
		return "WaitingForPeerAnswer"
	case UploadTransfering:
		return "Transfering"
	case UploadCompleted:
		return "Completed"
	case UploadRejected:
		return "Rejected"
	default:
		return "Error"
	}
}

var errTerminal = errors.New("transfer: role reached a terminal state")

// Upload drives the sending side of one file transfer.
type Upload struct {
	*Base

	username string
	mgr      *payload.Manager
	notifier *notify.Notifier

	mu              sync.Mutex
	status          UploadStatus
	onStatusChange  func(UploadStatus)
	onCompleted     func()
	onRejected      func()
	chunkSize       int64
	writeBufferSize int64

	progressInterval     time.Duration
	rateUpdateInterval   time.Duration
	rateWindowSpan       time.Duration
	rateWindowMinSamples int
}

// SetLimits overrides the per-Chunk-frame byte count and the number of
// bytes the refill loop writes between yields to the scheduler; a value <=0 leaves
// the corresponding package default in limits untouched. Call before
// SetPayload.
func (u *Upload) SetLimits(chunkSize, writeBufferSize int64) {
	u.chunkSize = chunkSize
	u.writeBufferSize = writeBufferSize
}

// SetRateParams overrides the Notifier's progressed() throttle and
// instant-rate window; a zero value leaves the corresponding package
// default untouched. Call before SetPayload.
func (u *Upload) SetRateParams(progressInterval, rateUpdateInterval, rateWindowSpan time.Duration, rateWindowMinSamples int) {
	u.progressInterval = progressInterval
	u.rateUpdateInterval = rateUpdateInterval
	u.rateWindowSpan = rateWindowSpan
	u.rateWindowMinSamples = rateWindowMinSamples
}

// NewUpload returns an Upload that will announce itself to the peer as
// username once SetPayload and Connect have both succeeded.
func NewUpload(username string) *Upload {
	return &Upload{username: username, status: UploadInit}
}

// SetPayload scans path into a Manager. sendHidden controls whether
// dotfiles are included in a directory scan.
func (u *Upload) SetPayload(path string, sendHidden bool) error {
	mgr, err := payload.NewManagerFromPath(path, payload.ScanOptions{IgnoreHidden: !sendHidden})
	if err != nil {
		u.setStatus(UploadError)
		return fmt.Errorf("%w: %v", ErrLocalIO, err)
	}
	if u.chunkSize > 0 {
		mgr.SetChunkSize(u.chunkSize)
	}
	u.mgr = mgr
	u.notifier = notify.New(mgr.TotalSize)
	u.notifier.SetRateParams(u.progressInterval, u.rateUpdateInterval, u.rateWindowSpan, u.rateWindowMinSamples)
	return nil
}

// Status returns the Upload's current lifecycle status.
func (u *Upload) Status() UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// OnStatusChange registers a callback invoked on every status transition.
func (u *Upload) OnStatusChange(cb func(UploadStatus)) { u.onStatusChange = cb }

// OnCompleted registers a callback invoked once the peer confirms receipt.
func (u *Upload) OnCompleted(cb func()) { u.onCompleted = cb }

// OnRejected registers a callback invoked if the peer rejects the offer.
func (u *Upload) OnRejected(cb func()) { u.onRejected = cb }

// OnProgressed delegates to the underlying Notifier; valid only after
// SetPayload.
func (u *Upload) OnProgressed(cb func()) { u.notifier.OnProgressed(cb) }

// OnInstantRate delegates to the underlying Notifier; valid only after
// SetPayload.
func (u *Upload) OnInstantRate(cb func(bytesPerSecond float64, followedByProgressed bool)) {
	u.notifier.OnInstantRate(cb)
}

// AverageRate delegates to the underlying Notifier; meaningful only after
// the transfer completes.
func (u *Upload) AverageRate() float64 { return u.notifier.AverageRate() }

func (u *Upload) setStatus(s UploadStatus) {
	u.mu.Lock()
	u.status = s
	cb := u.onStatusChange
	u.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Connect dials address, exchanges handshakes, and sends the Offer. It
// must be called after SetPayload. Run must be called next to drive the
// remainder of the transfer.
func (u *Upload) Connect(address string) error {
	if u.mgr == nil {
		return fmt.Errorf("%w: SetPayload not called", ErrWrongState)
	}

	conn, err := net.Dial("tcp", address)
	if err != nil {
		u.setStatus(UploadError)
		return fmt.Errorf("transfer: dial %s: %w", address, err)
	}
	u.Base = newBase(conn)
	u.setStatus(UploadStarting)

	if err := u.sendHandshake(); err != nil {
		u.setStatus(UploadError)
		u.fail(err)
		return err
	}
	if err := u.readHandshake(); err != nil {
		u.handleHandshakeFailure(err)
		return err
	}

	if err := u.writeFrame(wire.OfferFrame{Username: u.username, Manifest: u.mgr.Serialize()}); err != nil {
		u.setStatus(UploadError)
		u.fail(err)
		return err
	}
	u.setStatus(UploadWaitingForPeerAnswer)
	return nil
}

func (u *Upload) handleHandshakeFailure(err error) {
	u.setStatus(UploadError)
	if errors.Is(err, wire.ErrWrongVersion) {
		u.sendErrorAndClose("version mismatch")
	} else {
		u.conn.Close()
	}
	u.fail(err)
}

// Run drives the Offer → Accept/Reject → Chunk/Checksums → Completed
// sequence to its conclusion, returning nil on a clean outcome
// (Completed or Rejected) and the triggering error otherwise. It must be
// called after Connect.
func (u *Upload) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	accepted := make(chan struct{})

	g.Go(func() error {
		return u.readLoop(func(f wire.Frame) error { return u.dispatch(f, accepted) })
	})
	g.Go(func() error {
		select {
		case <-accepted:
		case <-gctx.Done():
			return gctx.Err()
		}
		err := u.refillLoop(gctx)
		if err != nil {
			u.conn.Close()
		}
		return err
	})

	err := g.Wait()
	switch u.Status() {
	case UploadCompleted, UploadRejected:
		return nil
	}
	if errors.Is(err, errTerminal) {
		return u.LastError()
	}
	if err != nil {
		u.setStatus(UploadError)
		u.fail(err)
		return err
	}
	return nil
}

func (u *Upload) dispatch(f wire.Frame, accepted chan struct{}) error {
	switch v := f.(type) {
	case wire.ErrorFrame:
		u.setStatus(UploadError)
		u.fail(fmt.Errorf("transfer: peer reported: %s", v.Text))
		return errTerminal

	case wire.AcceptFrame:
		if u.Status() != UploadWaitingForPeerAnswer {
			return newProtocolViolation(u.Status().String(), "unexpected Accept")
		}
		if err := u.mgr.StartSending(); err != nil {
			return err
		}
		u.notifier.Start()
		u.setStatus(UploadTransfering)
		close(accepted)
		return nil

	case wire.RejectFrame:
		if u.Status() != UploadWaitingForPeerAnswer {
			return newProtocolViolation(u.Status().String(), "unexpected Reject")
		}
		u.setStatus(UploadRejected)
		if u.onRejected != nil {
			u.onRejected()
		}
		u.conn.Close()
		return errTerminal

	case wire.CompletedFrame:
		if u.Status() != UploadTransfering {
			return newProtocolViolation(u.Status().String(), "unexpected Completed")
		}
		u.notifier.End()
		u.setStatus(UploadCompleted)
		if u.onCompleted != nil {
			u.onCompleted()
		}
		u.conn.Close()
		return errTerminal

	default:
		return newProtocolViolation(u.Status().String(), fmt.Sprintf("%T not valid for Upload", f))
	}
}

// refillLoop drains the Manager's chunks onto the socket as Chunk frames
// while bytes remain, yielding to the Go scheduler every WRITE_BUFFER_SIZE bytes —
// the idiomatic-Go counterpart of the spec's "suspend after a bounded
// wall-clock budget" refill policy, since a blocking Write already
// provides the backpressure that policy exists to bound.
func (u *Upload) refillLoop(ctx context.Context) error {
	writeBufferSize := int64(limits.WriteBufferSize)
	if u.writeBufferSize > 0 {
		writeBufferSize = u.writeBufferSize
	}
	var batch int64
	for !u.mgr.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunkSize := u.mgr.NextChunkSize()
		var chunk bytes.Buffer
		if err := u.mgr.SendNextChunk(&chunk); err != nil {
			return fmt.Errorf("transfer: send chunk: %w", err)
		}
		if chunk.Len() > 0 {
			if err := u.writeFrame(wire.ChunkFrame{Data: chunk.Bytes()}); err != nil {
				return err
			}
		}
		u.recordTransferred(uint64(chunkSize))
		u.SetAcknowledgedBytes(uint64(u.mgr.TotalTransferred()))
		sums, err := u.mgr.TakePendingChecksums()
		if err != nil {
			return err
		}
		if len(sums) > 0 {
			if err := u.writeFrame(wire.ChecksumsFrame{Digests: sums}); err != nil {
				return err
			}
		}
		u.notifier.Probe(u.mgr.TotalTransferred())

		batch += chunkSize
		if batch >= writeBufferSize {
			batch = 0
			runtime.Gosched()
		}
	}
	return nil
}
