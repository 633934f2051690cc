package server

import (
	"encoding/binary"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cubridgo/dbcore/internal/commcfg"
)

type outID int32
type inID int32

func testCfg() commcfg.Config {
	cfg := commcfg.DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.PollTimeout = 200 * time.Millisecond
	return cfg
}

// handshakePeer accepts one connection, reads the 4-byte connType and
// echoes it straight back, matching the wire handshake in spec §6.2.
func handshakePeer(t *testing.T, ln net.Listener, echoWrong bool) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	var buf [4]byte
	_, err = conn.Read(buf[:])
	require.NoError(t, err)
	if echoWrong {
		binary.BigEndian.PutUint32(buf[:], binary.BigEndian.Uint32(buf[:])+1)
	}
	_, err = conn.Write(buf[:])
	require.NoError(t, err)
}

func TestConnectionHandlerConnectSucceedsOnMatchingEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go handshakePeer(t, ln, false)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	h := NewConnectionHandler[outID, inID](host, port, ConnType(7), testCfg(), zerolog.Nop())
	require.NoError(t, h.Connect())
	require.True(t, h.IsConnected())

	<-h.DisconnectAsync()
}

func TestConnectionHandlerConnectFailsOnHandshakeMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go handshakePeer(t, ln, true)

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	h := NewConnectionHandler[outID, inID](host, port, ConnType(7), testCfg(), zerolog.Nop())
	err = h.Connect()
	require.ErrorIs(t, err, ErrHandshakeMismatch)
	require.False(t, h.IsConnected())
}

func TestConnectionHandlerOperationsFailWhenNotConnected(t *testing.T) {
	h := NewConnectionHandler[outID, inID]("127.0.0.1", 1, ConnType(1), testCfg(), zerolog.Nop())

	err := h.PushRequest(outID(1), nil)
	require.Error(t, err)

	_, err = h.SendReceive(outID(1), nil)
	require.Error(t, err)

	err = h.RegisterHandler(inID(1), nil)
	require.Error(t, err)
}

func TestConnectionHandlerDisconnectAsyncFromIdleClosesImmediately(t *testing.T) {
	h := NewConnectionHandler[outID, inID]("127.0.0.1", 1, ConnType(1), testCfg(), zerolog.Nop())
	done := h.DisconnectAsync()
	select {
	case <-done:
	default:
		t.Fatal("disconnecting an idle handler should close done immediately")
	}
}

func TestConnectionHandlerStateString(t *testing.T) {
	require.Equal(t, "IDLE", StateIdle.String())
	require.Equal(t, "CONNECTED", StateConnected.String())
	require.Contains(t, State(99).String(), "State(99)")
}
