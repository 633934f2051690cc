// Package server implements the transaction-server side of the
// page-server connection lifecycle: per-peer connection handlers, a
// reconnect daemon, and asynchronous teardown, all built on top of
// internal/comm's transport primitives.
package server

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cubridgo/dbcore/internal/comm"
	"github.com/cubridgo/dbcore/internal/commcfg"
)

// State is a connection handler's lifecycle state (spec §4.8).
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ErrNoServerAvailable is returned when no connection handler in a
// TranServer's list is currently connected.
var ErrNoServerAvailable = fmt.Errorf("server: no page server connection available")

// ErrHandshakeMismatch is returned when the peer echoes back a
// connection type different from what was sent.
var ErrHandshakeMismatch = fmt.Errorf("server: connection type handshake mismatch")

// ConnType identifies which kind of peer a ConnectionHandler is
// dialing, echoed back during the handshake (spec §6.2).
type ConnType int32

// ConnectionHandler owns one page-server TCP connection: its lifecycle
// state, its comm.SyncClientServer endpoint once connected, and the
// handshake used to establish it. Grounded on
// tran_server.cpp::connection_handler::connect.
type ConnectionHandler[OutID, InID ~int32] struct {
	host     string
	port     int
	connType ConnType

	cfg commcfg.Config
	log zerolog.Logger

	mu    sync.RWMutex
	state State
	ep    *comm.SyncClientServer[OutID, InID]
	ch    *comm.Channel
}

func NewConnectionHandler[OutID, InID ~int32](host string, port int, connType ConnType, cfg commcfg.Config, log zerolog.Logger) *ConnectionHandler[OutID, InID] {
	return &ConnectionHandler[OutID, InID]{
		host:     host,
		port:     port,
		connType: connType,
		cfg:      cfg,
		log:      log,
		state:    StateIdle,
	}
}

func (c *ConnectionHandler[OutID, InID]) ChannelID() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

func (c *ConnectionHandler[OutID, InID]) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// Connect dials the peer, performs the connection-type handshake (send
// connType as an int32, expect it echoed back), and on success installs
// a comm.SyncClientServer endpoint and starts it.
func (c *ConnectionHandler[OutID, InID]) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("server: connect called from state %s, want IDLE", c.state)
	}
	c.state = StateConnecting

	ch, err := comm.Dial(c.ChannelID(), c.host, c.port, c.cfg.ConnectTimeout)
	if err != nil {
		c.state = StateIdle
		return err
	}
	if err := ch.SendInt(int32(c.connType)); err != nil {
		ch.Close()
		c.state = StateIdle
		return err
	}
	echoed, err := ch.RecvInt()
	if err != nil {
		ch.Close()
		c.state = StateIdle
		return err
	}
	if echoed != int32(c.connType) {
		ch.Close()
		c.state = StateIdle
		return ErrHandshakeMismatch
	}

	c.ch = ch
	c.ep = comm.NewSyncClientServer[OutID, InID](ch, c.log)
	c.ep.Start()
	c.state = StateConnected
	c.log.Debug().Str("channel", ch.ChannelID()).Msg("connected to peer")
	return nil
}

// RegisterHandler forwards to the underlying endpoint; must be called
// after Connect succeeds and before any message traffic is expected.
func (c *ConnectionHandler[OutID, InID]) RegisterHandler(msgID InID, fn comm.Handler) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ep == nil {
		return fmt.Errorf("server: not connected")
	}
	return c.ep.RegisterHandler(msgID, fn)
}

// PushRequest sends a fire-and-forget message, reporting whether the
// connection died as a side effect so the caller (TranServer) can
// trigger a main-connection reset.
func (c *ConnectionHandler[OutID, InID]) PushRequest(msgID OutID, body []byte) error {
	c.mu.RLock()
	ep, ch := c.ep, c.ch
	c.mu.RUnlock()
	if ep == nil {
		return fmt.Errorf("server: not connected")
	}
	ep.Push(msgID, body)
	select {
	case <-ch.Done():
		c.markDead()
		return comm.ErrConnDead
	default:
		return nil
	}
}

// SendReceive issues a synchronous request and blocks for the reply.
func (c *ConnectionHandler[OutID, InID]) SendReceive(msgID OutID, body []byte) ([]byte, error) {
	c.mu.RLock()
	ep := c.ep
	c.mu.RUnlock()
	if ep == nil {
		return nil, fmt.Errorf("server: not connected")
	}
	resp, err := ep.SendRecv(msgID, body)
	if err != nil {
		c.markDead()
	}
	return resp, err
}

func (c *ConnectionHandler[OutID, InID]) markDead() {
	c.mu.Lock()
	if c.state == StateConnected {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// DisconnectAsync transitions the handler to DISCONNECTING and tears
// the connection down in the background, closing done once finished.
// Mirrors connection_handler::disconnect_async: the teardown itself
// (stopping the endpoint's goroutines, closing the socket) happens off
// the caller's goroutine.
func (c *ConnectionHandler[OutID, InID]) DisconnectAsync() <-chan struct{} {
	done := make(chan struct{})
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		close(done)
		return done
	}
	c.state = StateDisconnecting
	ep, ch := c.ep, c.ch
	c.mu.Unlock()

	go func() {
		defer close(done)
		if ep != nil {
			ep.Stop()
		}
		if ch != nil {
			ch.Close()
		}
		c.mu.Lock()
		c.state = StateIdle
		c.ep = nil
		c.ch = nil
		c.mu.Unlock()
	}()
	return done
}
