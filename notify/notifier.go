package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opd-ai/localshare/limits"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time                  { return time.Now() }
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

type sample struct {
	epochMs int64
	total   int64
}

// Notifier throttles progress signals for one transfer. It is driven by
// repeated calls to Probe as bytes move, plus Start/End to bracket the
// transfer's lifetime.
type Notifier struct {
	mu        sync.Mutex
	tp        TimeProvider
	totalSize int64
	window    []sample
	limiter   *rate.Limiter
	lastEmit  time.Time
	startTime time.Time
	endTime   time.Time
	stopCh    chan struct{}

	rateUpdateInterval   time.Duration
	rateWindowSpan       time.Duration
	rateWindowMinSamples int

	onProgressed  func()
	onInstantRate func(bytesPerSecond float64, followedByProgressed bool)
}

// New returns a Notifier for a transfer of totalSize bytes, using the
// package's default throttle/window parameters. Call SetRateParams before
// Start to override them.
func New(totalSize int64) *Notifier {
	return &Notifier{
		tp:                   defaultTimeProvider,
		totalSize:            totalSize,
		limiter:              rate.NewLimiter(rate.Every(limits.ProgressUpdateInterval), 1),
		rateUpdateInterval:   limits.RateUpdateInterval,
		rateWindowSpan:       limits.RateWindowSpan,
		rateWindowMinSamples: limits.RateWindowMinSamples,
	}
}

// SetRateParams overrides the progressed() throttle and the instant-rate
// window. Zero values leave the corresponding default untouched. Call
// before Start; changes after the background ticker starts do not apply.
func (n *Notifier) SetRateParams(progressInterval, rateUpdateInterval, rateWindowSpan time.Duration, rateWindowMinSamples int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if progressInterval > 0 {
		n.limiter = rate.NewLimiter(rate.Every(progressInterval), 1)
	}
	if rateUpdateInterval > 0 {
		n.rateUpdateInterval = rateUpdateInterval
	}
	if rateWindowSpan > 0 {
		n.rateWindowSpan = rateWindowSpan
	}
	if rateWindowMinSamples > 0 {
		n.rateWindowMinSamples = rateWindowMinSamples
	}
}

// SetTimeProvider overrides the clock used for window bookkeeping and
// throttling, for deterministic tests.
func (n *Notifier) SetTimeProvider(tp TimeProvider) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tp = tp
}

// OnProgressed registers the one-shot edge-trigger callback for UI
// refresh, emitted at most once per PROGRESS_UPDATE_INTERVAL and once
// more by End.
func (n *Notifier) OnProgressed(cb func()) { n.onProgressed = cb }

// OnInstantRate registers the callback for the sliding-window byte rate.
// followedByProgressed is true when this emission immediately precedes a
// throttled progressed() call.
func (n *Notifier) OnInstantRate(cb func(bytesPerSecond float64, followedByProgressed bool)) {
	n.onInstantRate = cb
}

// Start marks the beginning of the transfer and launches the background
// timer that emits instant_rate when progress probes are sparse.
func (n *Notifier) Start() {
	n.mu.Lock()
	n.startTime = n.tp.Now()
	n.stopCh = make(chan struct{})
	interval := n.rateUpdateInterval
	n.mu.Unlock()
	go n.rateTickerLoop(interval)
}

func (n *Notifier) rateTickerLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			now := n.tp.Now()
			sparse := now.Sub(n.lastEmit) >= n.rateUpdateInterval
			r := n.instantRateLocked(now)
			cb := n.onInstantRate
			n.mu.Unlock()
			if sparse && cb != nil {
				cb(r, false)
			}
		}
	}
}

// Probe records a new (time, total_transfered) sample and, if the
// progressed() throttle allows it, emits instant_rate(r, true) followed
// by progressed().
func (n *Notifier) Probe(totalTransferred int64) {
	n.mu.Lock()
	now := n.tp.Now()
	n.window = append(n.window, sample{epochMs: now.UnixMilli(), total: totalTransferred})
	n.trimWindowLocked(now)

	allow := n.limiter.AllowN(now, 1)
	var r float64
	if allow {
		r = n.instantRateLocked(now)
		n.lastEmit = now
	}
	progressedCb, rateCb := n.onProgressed, n.onInstantRate
	n.mu.Unlock()

	if allow {
		if rateCb != nil {
			rateCb(r, true)
		}
		if progressedCb != nil {
			progressedCb()
		}
	}
}

func (n *Notifier) trimWindowLocked(now time.Time) {
	for len(n.window) > n.rateWindowMinSamples {
		oldest := n.window[0]
		if now.Sub(time.UnixMilli(oldest.epochMs)) <= n.rateWindowSpan {
			break
		}
		n.window = n.window[1:]
	}
}

func (n *Notifier) instantRateLocked(now time.Time) float64 {
	if len(n.window) < 2 {
		return 0
	}
	oldest := n.window[0]
	newest := n.window[len(n.window)-1]
	dtMs := newest.epochMs - oldest.epochMs
	if dtMs <= 0 {
		return 0
	}
	db := newest.total - oldest.total
	return float64(db) * 1000 / float64(dtMs)
}

// End marks transfer completion: it stops the background timer, emits a
// final progressed(), and makes AverageRate available.
func (n *Notifier) End() {
	n.mu.Lock()
	n.endTime = n.tp.Now()
	stopCh := n.stopCh
	cb := n.onProgressed
	n.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if cb != nil {
		cb()
	}
}

// AverageRate returns total_size * 1000 / max(duration_ms, 1), valid
// after End has been called.
func (n *Notifier) AverageRate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	durationMs := n.endTime.Sub(n.startTime).Milliseconds()
	if durationMs < 1 {
		durationMs = 1
	}
	return float64(n.totalSize) * 1000 / float64(durationMs)
}
