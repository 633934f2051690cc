package comm

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced across the transport boundary (spec §6.4).
var (
	// ErrConnDead is returned when a channel's underlying connection has
	// already failed or been closed.
	ErrConnDead = errors.New("comm: connection is dead")

	// ErrPeerClosed is returned by Recv when the peer closed its end of
	// the connection (a zero-length read).
	ErrPeerClosed = errors.New("comm: peer closed connection")

	// ErrNoData is a soft "nothing to read yet" condition used by
	// RequestServer's poll loop; it is not a failure.
	ErrNoData = errors.New("comm: no data available")

	// ErrUnknownMsgID names the condition of a frame whose leading msg
	// id has no registered handler. RequestServer does not return it:
	// its dispatch logs such a frame and drops it.
	ErrUnknownMsgID = errors.New("comm: unknown message id")

	// ErrHandlersFrozen is returned by RegisterHandler once the receiver
	// thread has already started (spec §3.1 invariant: "handler
	// registration must be complete before the receiver thread is
	// started").
	ErrHandlersFrozen = errors.New("comm: handlers already frozen, server started")

	// ErrBrokerStopped is the stop-error a ResponseBroker's Wait returns
	// once Stop has run. NewResponseBroker takes no stop-error argument,
	// so every broker uses this one.
	ErrBrokerStopped = errors.New("comm: response broker stopped")

	// ErrShortPayload is returned when a payload is too small to contain
	// the fields unpack expects.
	ErrShortPayload = errors.New("comm: payload too short to unpack")
)

// ErrFrameTooLarge is returned when a received length prefix exceeds the
// channel's configured maximum frame size.
type ErrFrameTooLarge struct {
	Size  int32
	Limit int32
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("comm: frame size %d exceeds limit %d", e.Size, e.Limit)
}
