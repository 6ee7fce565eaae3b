package discovery

import (
	"fmt"
	"net"
)

// LookupHost resolves hostname to a single IP address string, for turning
// a discovered peer's mDNS hostname into something Connect can dial.
func LookupHost(hostname string) (string, error) {
	addrs, err := net.LookupHost(hostname)
	if err != nil {
		return "", fmt.Errorf("discovery: lookup host %s: %w", hostname, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("discovery: no addresses for %s", hostname)
	}
	return addrs[0], nil
}
