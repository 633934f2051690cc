package server

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTranServerBootLocalStorageToleratesNoHosts(t *testing.T) {
	ts := NewTranServer[outID, inID](ConnType(1), testCfg(), zerolog.Nop())
	require.NoError(t, ts.Boot(false))
	require.False(t, ts.IsPageServerConnected())
}

func TestTranServerBootRemoteStorageRequiresAtLeastOneHost(t *testing.T) {
	ts := NewTranServer[outID, inID](ConnType(1), testCfg(), zerolog.Nop())
	err := ts.Boot(true)
	require.ErrorIs(t, err, ErrNoServerAvailable)
}

func TestTranServerBootConnectsAndSelectsMain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go handshakePeer(t, ln, false)

	ts := NewTranServer[outID, inID](ConnType(1), testCfg(), zerolog.Nop())
	errs := ts.RegisterHosts(ln.Addr().String())
	require.Empty(t, errs)

	require.NoError(t, ts.Boot(true))
	require.True(t, ts.IsPageServerConnected())

	ts.mainMu.RLock()
	main := ts.main
	ts.mainMu.RUnlock()
	require.Same(t, ts.conns[0], main)

	ts.DisconnectAll()
	require.False(t, ts.IsPageServerConnected())
}

func TestTranServerBootRemoteStorageFailsWhenAllHostsUnreachable(t *testing.T) {
	ts := NewTranServer[outID, inID](ConnType(1), testCfg(), zerolog.Nop())
	errs := ts.RegisterHosts("127.0.0.1:1")
	require.Empty(t, errs)

	err := ts.Boot(true)
	require.ErrorIs(t, err, ErrNoServerAvailable)
}

func TestTranServerSendReceiveWithNoMainConnection(t *testing.T) {
	ts := NewTranServer[outID, inID](ConnType(1), testCfg(), zerolog.Nop())
	_, err := ts.SendReceive(outID(1), nil)
	require.ErrorIs(t, err, ErrNoServerAvailable)

	err = ts.PushRequest(outID(1), nil)
	require.ErrorIs(t, err, ErrNoServerAvailable)
}
