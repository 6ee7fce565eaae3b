package localshare

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/localshare/discovery"
	"github.com/opd-ai/localshare/transfer"
)

// Peer is a discovered remote endpoint offering the localshare service.
type Peer = discovery.Peer

// Node wires discovery to the transfer engine for one local identity: it
// publishes the local peer, browses for others, and constructs the
// Upload/Download transfers the application then owns and drives.
type Node struct {
	mu        sync.Mutex
	username  string
	cfg       *Config
	publisher *discovery.Publisher
	browser   *discovery.Browser
	transfers map[uuid.UUID]struct{}

	log *logrus.Entry
}

// NewNode returns a Node for username. cfg may be nil, in which case
// NewConfig's defaults are used.
func NewNode(username string, cfg *Config) *Node {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Node{
		username:  username,
		cfg:       cfg,
		publisher: discovery.NewPublisher(cfg.ServiceType),
		transfers: make(map[uuid.UUID]struct{}),
		log:       logrus.WithField("node", username),
	}
}

// Username returns the identity this Node publishes and offers under.
func (n *Node) Username() string { return n.username }

// Config returns the Config this Node was constructed with.
func (n *Node) Config() *Config { return n.cfg }

// Publish announces the local peer under the node's username on port.
func (n *Node) Publish(port int) error {
	return n.publisher.Publish(n.username, port)
}

// OnNameChanged registers the callback invoked once Publish succeeds.
func (n *Node) OnNameChanged(cb func(string)) { n.publisher.OnNameChanged(cb) }

// StopPublishing withdraws the local peer's service record.
func (n *Node) StopPublishing() { n.publisher.Stop() }

// StartBrowsing begins discovering other localshare peers in the
// background until ctx is cancelled or StopBrowsing is called.
func (n *Node) StartBrowsing(ctx context.Context) error {
	n.mu.Lock()
	if n.browser == nil {
		b, err := discovery.NewBrowser(n.cfg.ServiceType)
		if err != nil {
			n.mu.Unlock()
			return fmt.Errorf("localshare: start browsing: %w", err)
		}
		n.browser = b
	}
	browser := n.browser
	n.mu.Unlock()
	return browser.Start(ctx)
}

// OnPeerFound registers the callback invoked once per discovered peer.
// Call before StartBrowsing.
func (n *Node) OnPeerFound(cb func(Peer)) {
	n.mu.Lock()
	if n.browser == nil {
		b, err := discovery.NewBrowser(n.cfg.ServiceType)
		if err == nil {
			n.browser = b
		}
	}
	browser := n.browser
	n.mu.Unlock()
	if browser != nil {
		browser.OnAdded(cb)
	}
}

// StopBrowsing ends any in-progress peer discovery.
func (n *Node) StopBrowsing() {
	n.mu.Lock()
	browser := n.browser
	n.mu.Unlock()
	if browser != nil {
		browser.Stop()
	}
}

// LookupHost resolves a discovered Peer's hostname to an address.
func (n *Node) LookupHost(hostname string) (string, error) {
	return discovery.LookupHost(hostname)
}

// NewUpload builds an Upload for path under this node's username and
// registers it in the Node's active-transfer set. The caller drives
// Connect and Run, and should call Untrack once the transfer concludes.
func (n *Node) NewUpload(path string, sendHidden bool) (*transfer.Upload, error) {
	u := transfer.NewUpload(n.username)
	u.SetLimits(n.cfg.ChunkSize, n.cfg.WriteBufferSize)
	u.SetRateParams(n.cfg.ProgressUpdateInterval, n.cfg.RateUpdateInterval, n.cfg.RateWindowSpan, n.cfg.RateWindowMinSamples)
	if err := u.SetPayload(path, sendHidden); err != nil {
		return nil, err
	}
	n.track(u.ID())
	return u, nil
}

// AcceptDownload wraps an inbound connection in a Download and registers
// it in the Node's active-transfer set. The caller drives Run.
func (n *Node) AcceptDownload(conn net.Conn) *transfer.Download {
	d := transfer.NewDownload(conn)
	d.SetRateParams(n.cfg.ProgressUpdateInterval, n.cfg.RateUpdateInterval, n.cfg.RateWindowSpan, n.cfg.RateWindowMinSamples)
	n.track(d.ID())
	return d
}

func (n *Node) track(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transfers[id] = struct{}{}
}

// Untrack removes a transfer from the Node's active set once the
// application is done with it (after Run returns).
func (n *Node) Untrack(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.transfers, id)
}

// ActiveTransferCount returns how many transfers are currently tracked.
func (n *Node) ActiveTransferCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transfers)
}
