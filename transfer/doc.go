// Package transfer drives one peer-to-peer file transfer end to end: the
// shared handshake/framing state machine (Base) plus the Upload and
// Download roles built on top of it.
//
// Each Transfer owns exactly one net.Conn, one payload.Manager, and one
// notify.Notifier; none of these are shared across Transfers. A Base's
// read loop and a role's refill loop (Upload only) run as sibling
// goroutines coordinated by golang.org/x/sync/errgroup. A failure in
// either closes the connection, which unblocks a Read or Write the other
// is waiting in; the refill loop also checks the shared context between
// chunks. This is the idiomatic Go
// counterpart of the cooperative single-threaded executor described for
// this protocol: a blocking Read/Write call is this implementation's
// suspension point.
package transfer
