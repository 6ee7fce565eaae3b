package discovery

import (
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

// Publisher registers the local peer under the localshare service type
// and reports naming/failure events to the application. Stop is
// idempotent; Publish on a running Publisher returns an error. The running
// flag is mutex-guarded so Publish/Stop can be called from different
// goroutines safely.
type Publisher struct {
	mu          sync.RWMutex
	server      *zeroconf.Server
	running     bool
	name        string
	serviceType string

	onNameChanged func(string)
	onDestroyed   func(error)

	log *logrus.Entry
}

// NewPublisher returns a Publisher ready to have Publish called on it.
// serviceType selects the mDNS service type peers browse under; an empty
// string falls back to ServiceType.
func NewPublisher(serviceType string) *Publisher {
	if serviceType == "" {
		serviceType = ServiceType
	}
	return &Publisher{serviceType: serviceType, log: logrus.WithField("component", "discovery.Publisher")}
}

// OnNameChanged registers the callback invoked with the name actually
// assigned to the service once Publish succeeds.
func (p *Publisher) OnNameChanged(cb func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNameChanged = cb
}

// OnDestroyed registers the callback invoked when the publisher stops,
// carrying the error that caused it, or nil on a clean Stop.
func (p *Publisher) OnDestroyed(cb func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDestroyed = cb
}

// IsRunning reports whether the service is currently published.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Publish registers username under ServiceType on port. grandcat/zeroconf
// does not implement mDNS probe/collision detection, so the assigned name
// always equals the requested one; name_changed still fires once, for
// interface parity with callers expecting the spec's collision-rename
// signal.
func (p *Publisher) Publish(username string, port int) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("discovery: publisher already running")
	}
	p.mu.Unlock()

	server, err := zeroconf.Register(username, p.serviceType, "local.", port, nil, nil)
	if err != nil {
		p.log.WithError(err).Warn("discovery: publish failed")
		p.mu.RLock()
		cb := p.onDestroyed
		p.mu.RUnlock()
		if cb != nil {
			cb(fmt.Errorf("discovery: publish: %w", err))
		}
		return fmt.Errorf("discovery: publish: %w", err)
	}

	p.mu.Lock()
	p.server = server
	p.running = true
	p.name = username
	cb := p.onNameChanged
	p.mu.Unlock()

	p.log.WithFields(logrus.Fields{"name": username, "port": port}).Info("discovery: published")
	if cb != nil {
		cb(username)
	}
	return nil
}

// Stop unpublishes the service. Safe to call more than once.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	server := p.server
	p.server = nil
	cb := p.onDestroyed
	p.mu.Unlock()

	if server != nil {
		server.Shutdown()
	}
	p.log.Debug("discovery: publisher stopped")
	if cb != nil {
		cb(nil)
	}
}
