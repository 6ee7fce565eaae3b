package discovery

// ServiceType is the fixed mDNS service type both sides browse and
// publish under.
const ServiceType = "_localshare._tcp."

// Peer is one entry from a Browse stream: a discovered remote endpoint
// offering the localshare service.
type Peer struct {
	Username string
	Hostname string
	Address  string // best-effort from the mDNS answer; empty if unresolved
	Port     int
}
