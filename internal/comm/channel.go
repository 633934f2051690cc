// Package comm implements the typed request/response transport fabric:
// a length-prefixed framing channel, request client/server dispatch,
// a send queue with an autosend daemon, and a response broker that
// turns asynchronous replies into synchronous send/recv calls.
package comm

import (
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxFrameSize bounds how large a single frame's payload is
// allowed to be before RecvFrame refuses it, guarding against a
// corrupted or hostile length prefix causing an unbounded allocation.
const DefaultMaxFrameSize = 64 << 20 // 64 MiB

// Channel is a bidirectional, length-prefixed byte stream over a TCP
// connection (spec §4.1). Every frame on the wire is
// [length int32][payload of length bytes], both network byte order.
type Channel struct {
	id   string
	conn net.Conn

	pollTimeout time.Duration
	maxFrame    int32

	closeOnce sync.Once
	closed    atomic.Bool
	doneCh    chan struct{}
}

// NewChannel wraps an already-established net.Conn. id is an opaque
// identifier used only for logging (spec §3.1: "channel-id string").
func NewChannel(id string, conn net.Conn, pollTimeout time.Duration) *Channel {
	return &Channel{
		id:          id,
		conn:        conn,
		pollTimeout: pollTimeout,
		maxFrame:    DefaultMaxFrameSize,
		doneCh:      make(chan struct{}),
	}
}

// Dial connects to host:port with the channel's poll timeout bounding
// the dial itself, then wraps the resulting connection.
func Dial(id, host string, port int, pollTimeout time.Duration) (*Channel, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, pollTimeout)
	if err != nil {
		return nil, err
	}
	return NewChannel(id, conn, pollTimeout), nil
}

// ChannelID returns the opaque identifier passed to NewChannel.
func (c *Channel) ChannelID() string { return c.id }

// SendInt writes a single int32 as the wire's length-prefix field.
func (c *Channel) SendInt(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return c.writeFull(buf[:])
}

// RecvInt reads a single int32 length-prefix field. It returns
// ErrNoData if the read times out with nothing available yet (the
// channel's "empty select / heartbeat" case, spec §4.2).
func (c *Channel) RecvInt() (int32, error) {
	var buf [4]byte
	if err := c.readFull(buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// Send writes payload as-is (no length prefix); pair with a prior
// SendInt(len(payload)) per the wire layout in spec §6.1.
func (c *Channel) Send(payload []byte) error {
	return c.writeFull(payload)
}

// SendFrame writes a full [length][payload] frame in one logical
// operation, matching request_client::send's "one frame" contract
// (spec §4.3).
func (c *Channel) SendFrame(payload []byte) error {
	if err := c.SendInt(int32(len(payload))); err != nil {
		return err
	}
	return c.Send(payload)
}

// RecvFrame reads a length prefix followed by that many payload bytes,
// returning ErrNoData on a timed-out length read (caller should loop)
// and ErrPeerClosed or ErrConnDead on a hard failure.
func (c *Channel) RecvFrame() ([]byte, error) {
	n, err := c.RecvInt()
	if err != nil {
		return nil, err
	}
	if n < 0 || n > c.maxFrame {
		return nil, &ErrFrameTooLarge{Size: n, Limit: c.maxFrame}
	}
	buf := make([]byte, n)
	if err := c.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Channel) writeFull(b []byte) error {
	if c.closed.Load() {
		return ErrConnDead
	}
	if c.pollTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.pollTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write(b)
	if err != nil {
		return ErrConnDead
	}
	return nil
}

func (c *Channel) readFull(b []byte) error {
	if c.closed.Load() {
		return ErrConnDead
	}
	if c.pollTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.pollTimeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	_, err := io.ReadFull(c.conn, b)
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ErrNoData
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrPeerClosed
	}
	return ErrConnDead
}

// Close closes the underlying connection. Idempotent.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.doneCh)
		err = c.conn.Close()
	})
	return err
}

// Done returns a channel closed once Close has run, used by readers
// that want to unblock promptly on shutdown rather than wait out a
// long poll timeout.
func (c *Channel) Done() <-chan struct{} { return c.doneCh }
