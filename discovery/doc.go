// Package discovery publishes the local peer as an mDNS service and
// browses for others under the same service type. It is the only package
// that imports grandcat/zeroconf; the transfer package never sees the
// mDNS library directly.
package discovery
