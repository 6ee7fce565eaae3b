package transfer

import "time"

// timeProvider abstracts time for deterministic stall-detection tests.
type timeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type defaultTimeProvider struct{}

func (defaultTimeProvider) Now() time.Time                  { return time.Now() }
func (defaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// touchActivity records that a chunk was sent or received just now.
func (b *Base) touchActivity() {
	b.mu.Lock()
	b.lastActivity = b.tp.Now()
	b.mu.Unlock()
}

// IsStalled reports whether at least timeout has elapsed since the last
// chunk crossed the wire, an opt-in signal an embedding application can
// use for a UI stall warning independent of any OS-level socket timeout.
// A zero timeout always reports not-stalled.
func (b *Base) IsStalled(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tp.Since(b.lastActivity) >= timeout
}

// SetTimeProvider overrides the clock backing IsStalled, for tests.
func (b *Base) SetTimeProvider(tp timeProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tp = tp
}

// recordTransferred accounts n more bytes as having crossed the wire.
func (b *Base) recordTransferred(n uint64) {
	b.mu.Lock()
	b.transferred += n
	b.mu.Unlock()
	b.touchActivity()
}

// SetAcknowledgedBytes records how many bytes the peer (or, absent a
// protocol-level ack frame, the local caller standing in for one) has
// confirmed. GetPendingBytes reports the gap for flow-control decisions.
func (b *Base) SetAcknowledgedBytes(n uint64) {
	b.mu.Lock()
	b.acknowledged = n
	cb := b.ackCallback
	b.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

// GetAcknowledgedBytes returns the value last passed to SetAcknowledgedBytes.
func (b *Base) GetAcknowledgedBytes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acknowledged
}

// OnAcknowledge registers a callback invoked on every SetAcknowledgedBytes.
func (b *Base) OnAcknowledge(cb func(uint64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ackCallback = cb
}

// GetPendingBytes returns bytes sent but not yet acknowledged. The wire
// protocol carries no ack frame; Upload's refill loop and Download's Chunk
// handler set the acknowledged count to the Manager's running total after
// every chunk, so during a transfer this reports zero once each chunk is
// accounted for. It is not used for internal flow control (the refill
// loop's backpressure already comes from the blocking socket Write, see
// upload.go's refillLoop doc comment).
func (b *Base) GetPendingBytes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.transferred > b.acknowledged {
		return b.transferred - b.acknowledged
	}
	return 0
}
