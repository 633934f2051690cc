package comm

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type appMsgID int32

const appEcho appMsgID = 10

func newSyncPair() (*SyncClientServer[appMsgID, appMsgID], *SyncClientServer[appMsgID, appMsgID]) {
	a, b := net.Pipe()
	chA := NewChannel("a", a, time.Second)
	chB := NewChannel("b", b, time.Second)
	return NewSyncClientServer[appMsgID, appMsgID](chA, zerolog.Nop()),
		NewSyncClientServer[appMsgID, appMsgID](chB, zerolog.Nop())
}

func TestSyncClientServerSendRecvRoundTrip(t *testing.T) {
	client, server := newSyncPair()

	require.NoError(t, server.RegisterHandler(appEcho, func(rsn uint64, body []byte) ([]byte, error) {
		upper := make([]byte, len(body))
		for i, c := range body {
			if c >= 'a' && c <= 'z' {
				c -= 'a' - 'A'
			}
			upper[i] = c
		}
		return upper, nil
	}))

	client.Start()
	server.Start()
	defer client.Stop()
	defer server.Stop()

	reply, err := client.SendRecv(appEcho, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("HELLO"), reply)
}

func TestSyncClientServerPushIsFireAndForget(t *testing.T) {
	client, server := newSyncPair()

	received := make(chan []byte, 1)
	require.NoError(t, server.RegisterHandler(appEcho, func(rsn uint64, body []byte) ([]byte, error) {
		received <- body
		require.Zero(t, rsn, "a Push-originated request must carry rsn 0")
		return nil, nil
	}))

	client.Start()
	server.Start()
	defer client.Stop()
	defer server.Stop()

	client.Push(appEcho, []byte("no reply expected"))

	select {
	case got := <-received:
		require.Equal(t, []byte("no reply expected"), got)
	case <-time.After(time.Second):
		t.Fatal("handler never saw the pushed message")
	}
}

func TestSyncClientServerStopUnblocksPendingSendRecv(t *testing.T) {
	client, server := newSyncPair()

	// Server never replies — simulate a stalled peer.
	require.NoError(t, server.RegisterHandler(appEcho, func(rsn uint64, body []byte) ([]byte, error) {
		return nil, nil
	}))

	client.Start()
	server.Start()
	defer server.Stop()

	resultCh := make(chan error, 1)
	go func() {
		_, err := client.SendRecv(appEcho, []byte("hang"))
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Stop()

	select {
	case err := <-resultCh:
		require.ErrorIs(t, err, ErrBrokerStopped)
	case <-time.After(time.Second):
		t.Fatal("Stop never unblocked the pending SendRecv")
	}
}
