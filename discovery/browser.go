package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

// Browser streams Peer sightings under ServiceType to a registered
// callback for the lifetime of one Start/Stop session.
type Browser struct {
	mu          sync.Mutex
	resolver    *zeroconf.Resolver
	cancel      context.CancelFunc
	running     bool
	serviceType string

	onAdded func(Peer)

	log *logrus.Entry
}

// NewBrowser constructs a Browser. serviceType selects the mDNS service
// type to browse; an empty string falls back to ServiceType. It is an
// error to reuse a Browser after Stop; construct a new one per browse
// session.
func NewBrowser(serviceType string) (*Browser, error) {
	if serviceType == "" {
		serviceType = ServiceType
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: new resolver: %w", err)
	}
	return &Browser{resolver: resolver, serviceType: serviceType, log: logrus.WithField("component", "discovery.Browser")}, nil
}

// OnAdded registers the callback invoked once per discovered peer.
func (b *Browser) OnAdded(cb func(Peer)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onAdded = cb
}

// IsRunning reports whether Start has been called without a matching Stop.
func (b *Browser) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins browsing in the background. ctx additionally bounds the
// browse session; Stop or ctx's own cancellation both end it.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("discovery: browser already running")
	}
	browseCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.mu.Unlock()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go b.dispatchLoop(entries)

	if err := b.resolver.Browse(browseCtx, b.serviceType, "local.", entries); err != nil {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		cancel()
		return fmt.Errorf("discovery: browse: %w", err)
	}
	return nil
}

func (b *Browser) dispatchLoop(entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		peer := peerFromEntry(entry)
		b.mu.Lock()
		cb := b.onAdded
		b.mu.Unlock()
		if cb != nil {
			cb(peer)
		}
	}
}

// Stop ends the browse session. Safe to call more than once.
func (b *Browser) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.log.Debug("discovery: browser stopped")
}

func peerFromEntry(entry *zeroconf.ServiceEntry) Peer {
	addr := ""
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		addr = entry.AddrIPv6[0].String()
	}
	return Peer{
		Username: entry.Instance,
		Hostname: entry.HostName,
		Address:  addr,
		Port:     entry.Port,
	}
}
