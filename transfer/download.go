package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/opd-ai/localshare/notify"
	"github.com/opd-ai/localshare/payload"
	"github.com/opd-ai/localshare/wire"
)

// DownloadStatus is the Download role's status lifecycle.
type DownloadStatus int

const (
	DownloadStarting DownloadStatus = iota
	DownloadWaitingForOffer
	DownloadWaitingForUserChoice
	DownloadTransfering
	DownloadCompleted
	DownloadRejected
	DownloadError
)

func (s DownloadStatus) String() string {
	switch s {
	case DownloadStarting:
		return "Starting"
	case DownloadWaitingForOffer:
		return "WaitingForOffer"
	case DownloadWaitingForUserChoice:
		return "WaitingForUserChoice"
	case DownloadTransfering:
		return "Transfering"
	case DownloadCompleted:
		return "Completed"
	case DownloadRejected:
		return "Rejected"
	default:
		return "Error"
	}
}

// FileInfo is one entry of an OfferInfo's file list.
type FileInfo struct {
	RelativePath string
	Size         int64
}

// OfferInfo summarises an inbound Offer for the external caller that
// decides Accept/Reject via GiveUserChoice.
type OfferInfo struct {
	Username    string
	PayloadRoot string
	TotalSize   int64
	Files       []FileInfo
}

type userChoice struct {
	accept    bool
	targetDir string
}

// Download drives the receiving side of one file transfer over an
// already-accepted inbound connection.
type Download struct {
	*Base

	pendingMgr *payload.Manager
	mgr        *payload.Manager
	notifier   *notify.Notifier

	mu          sync.Mutex
	status      DownloadStatus
	choiceCh    chan userChoice
	choiceGiven bool

	onStatusChange       func(DownloadStatus)
	onOffer              func(OfferInfo)
	onCompleted          func()
	onRejected           func()
	pendingOnProgressed  func()
	pendingOnInstantRate func(bytesPerSecond float64, followedByProgressed bool)

	progressInterval     time.Duration
	rateUpdateInterval   time.Duration
	rateWindowSpan       time.Duration
	rateWindowMinSamples int
}

// SetRateParams overrides the Notifier's progressed() throttle and
// instant-rate window for this Download; a zero value leaves the
// corresponding package default untouched. Call before GiveUserChoice.
func (d *Download) SetRateParams(progressInterval, rateUpdateInterval, rateWindowSpan time.Duration, rateWindowMinSamples int) {
	d.progressInterval = progressInterval
	d.rateUpdateInterval = rateUpdateInterval
	d.rateWindowSpan = rateWindowSpan
	d.rateWindowMinSamples = rateWindowMinSamples
}

// NewDownload wraps an inbound connection accepted by the caller's
// listener.
func NewDownload(conn net.Conn) *Download {
	d := &Download{status: DownloadStarting, choiceCh: make(chan userChoice, 1)}
	d.Base = newBase(conn)
	return d
}

// Status returns the Download's current lifecycle status.
func (d *Download) Status() DownloadStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Download) setStatus(s DownloadStatus) {
	d.mu.Lock()
	d.status = s
	cb := d.onStatusChange
	d.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// OnStatusChange registers a callback invoked on every status transition.
func (d *Download) OnStatusChange(cb func(DownloadStatus)) { d.onStatusChange = cb }

// OnOffer registers the callback invoked once a validated Offer arrives;
// the caller must eventually respond with GiveUserChoice.
func (d *Download) OnOffer(cb func(OfferInfo)) { d.onOffer = cb }

// OnCompleted registers a callback invoked once the transfer finishes.
func (d *Download) OnCompleted(cb func()) { d.onCompleted = cb }

// OnRejected registers a callback invoked if the local user rejects.
func (d *Download) OnRejected(cb func()) { d.onRejected = cb }

// OnProgressed is applied to the Notifier once one exists (after Accept).
func (d *Download) OnProgressed(cb func()) { d.pendingOnProgressed = cb }

// OnInstantRate is applied to the Notifier once one exists (after Accept).
func (d *Download) OnInstantRate(cb func(bytesPerSecond float64, followedByProgressed bool)) {
	d.pendingOnInstantRate = cb
}

// AverageRate delegates to the underlying Notifier; zero before Accept.
func (d *Download) AverageRate() float64 {
	if d.notifier == nil {
		return 0
	}
	return d.notifier.AverageRate()
}

// GiveUserChoice answers a pending Offer. targetDir is ignored on reject.
func (d *Download) GiveUserChoice(accept bool, targetDir string) error {
	d.mu.Lock()
	if d.status != DownloadWaitingForUserChoice {
		d.mu.Unlock()
		return fmt.Errorf("%w: not awaiting a user choice", ErrWrongState)
	}
	if d.choiceGiven {
		d.mu.Unlock()
		return ErrAlreadyChosen
	}
	d.choiceGiven = true
	d.mu.Unlock()
	d.choiceCh <- userChoice{accept: accept, targetDir: targetDir}
	return nil
}

// Run sends the handshake, waits for the peer's, and drives the Offer →
// Accept/Reject → Chunk/Checksums → Completed sequence to its
// conclusion. It returns nil on a clean outcome (Completed or Rejected)
// and the triggering error otherwise.
func (d *Download) Run(ctx context.Context) error {
	if err := d.sendHandshake(); err != nil {
		d.setStatus(DownloadError)
		d.fail(err)
		return err
	}
	if err := d.readHandshake(); err != nil {
		d.handleHandshakeFailure(err)
		return err
	}
	d.setStatus(DownloadWaitingForOffer)

	err := d.readLoop(d.dispatch)
	switch d.Status() {
	case DownloadCompleted, DownloadRejected:
		return nil
	}
	if errors.Is(err, errTerminal) {
		return d.LastError()
	}
	if err != nil {
		d.setStatus(DownloadError)
		d.fail(err)
		return err
	}
	return nil
}

func (d *Download) handleHandshakeFailure(err error) {
	d.setStatus(DownloadError)
	if errors.Is(err, wire.ErrWrongVersion) {
		d.sendErrorAndClose("version mismatch")
	} else {
		d.conn.Close()
	}
	d.fail(err)
}

func (d *Download) dispatch(f wire.Frame) error {
	switch v := f.(type) {
	case wire.ErrorFrame:
		d.setStatus(DownloadError)
		d.fail(fmt.Errorf("transfer: peer reported: %s", v.Text))
		return errTerminal

	case wire.OfferFrame:
		return d.handleOffer(v)

	case wire.ChunkFrame:
		if d.Status() != DownloadTransfering {
			return newProtocolViolation(d.Status().String(), "unexpected Chunk")
		}
		if err := d.mgr.ReceiveChunk(bytes.NewReader(v.Data), int64(len(v.Data))); err != nil {
			d.abortGraceful(err)
			return errTerminal
		}
		d.recordTransferred(uint64(len(v.Data)))
		d.SetAcknowledgedBytes(uint64(d.mgr.TotalTransferred()))
		d.notifier.Probe(d.mgr.TotalTransferred())
		return nil

	case wire.ChecksumsFrame:
		if d.Status() != DownloadTransfering {
			return newProtocolViolation(d.Status().String(), "unexpected Checksums")
		}
		if err := d.mgr.TestChecksums(v.Digests); err != nil {
			d.abortGraceful(err)
			return errTerminal
		}
		if d.mgr.Done() {
			d.notifier.End()
			if err := d.writeFrame(wire.CompletedFrame{}); err != nil {
				d.setStatus(DownloadError)
				d.fail(err)
				return errTerminal
			}
			d.setStatus(DownloadCompleted)
			if d.onCompleted != nil {
				d.onCompleted()
			}
			d.conn.Close()
			return errTerminal
		}
		return nil

	default:
		return newProtocolViolation(d.Status().String(), fmt.Sprintf("%T not valid for Download", f))
	}
}

func (d *Download) handleOffer(v wire.OfferFrame) error {
	if d.Status() != DownloadWaitingForOffer {
		return newProtocolViolation(d.Status().String(), "unexpected Offer")
	}

	mgr, err := payload.Deserialize(v.Manifest)
	if err == nil {
		err = mgr.Validate()
	}
	if err != nil {
		d.abortGraceful(fmt.Errorf("%w: %v", ErrInvalidOffer, err))
		return errTerminal
	}

	d.pendingMgr = mgr
	d.peerName = v.Username
	d.setStatus(DownloadWaitingForUserChoice)
	if d.onOffer != nil {
		d.onOffer(offerInfoFrom(mgr, v.Username))
	}

	choice := <-d.choiceCh
	return d.applyChoice(choice)
}

func (d *Download) applyChoice(choice userChoice) error {
	mgr := d.pendingMgr
	if !choice.accept {
		if err := d.writeFrame(wire.RejectFrame{}); err != nil {
			d.setStatus(DownloadError)
			d.fail(err)
			return errTerminal
		}
		d.setStatus(DownloadRejected)
		if d.onRejected != nil {
			d.onRejected()
		}
		d.conn.Close()
		return errTerminal
	}

	if err := mgr.StartReceiving(filepath.Join(choice.targetDir, mgr.PayloadRoot)); err != nil {
		d.abortGraceful(err)
		return errTerminal
	}
	d.mgr = mgr
	d.notifier = notify.New(mgr.TotalSize)
	d.notifier.SetRateParams(d.progressInterval, d.rateUpdateInterval, d.rateWindowSpan, d.rateWindowMinSamples)
	if d.pendingOnProgressed != nil {
		d.notifier.OnProgressed(d.pendingOnProgressed)
	}
	if d.pendingOnInstantRate != nil {
		d.notifier.OnInstantRate(d.pendingOnInstantRate)
	}
	d.notifier.Start()

	if err := d.writeFrame(wire.AcceptFrame{}); err != nil {
		d.setStatus(DownloadError)
		d.fail(err)
		return errTerminal
	}
	d.setStatus(DownloadTransfering)
	return nil
}

// abortGraceful implements the graceful-failure path shared by several
// dispatch branches: announce the reason, close, record the status.
func (d *Download) abortGraceful(err error) {
	d.sendErrorAndClose(err.Error())
	d.setStatus(DownloadError)
	d.fail(err)
}

func offerInfoFrom(mgr *payload.Manager, username string) OfferInfo {
	files := make([]FileInfo, len(mgr.Files))
	for i, f := range mgr.Files {
		files[i] = FileInfo{RelativePath: f.RelativePath, Size: f.Size}
	}
	return OfferInfo{
		Username:    username,
		PayloadRoot: mgr.PayloadRoot,
		TotalSize:   mgr.TotalSize,
		Files:       files,
	}
}
