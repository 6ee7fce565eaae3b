package transfer

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the transfer roles. ErrInvalidOffer is also
// sent to the peer in an Error frame before the socket closes; the others
// are returned to the local caller only.
var (
	ErrInvalidOffer  = errors.New("transfer: offer failed validation")
	ErrLocalIO       = errors.New("transfer: local filesystem error")
	ErrAlreadyChosen = errors.New("transfer: user choice already given")
	ErrWrongState    = errors.New("transfer: operation invalid in current state")
)

// ProtocolViolation marks a failure that aborts the connection without
// ever sending an Error frame: an illegal message for the current role
// or state. It wraps the triggering message's name for diagnostics.
type ProtocolViolation struct {
	State   string
	Message string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("transfer: protocol violation: %s in state %s", e.Message, e.State)
}

func newProtocolViolation(state, message string) *ProtocolViolation {
	return &ProtocolViolation{State: state, Message: message}
}
