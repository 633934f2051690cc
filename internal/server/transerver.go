package server

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cubridgo/dbcore/internal/comm"
	"github.com/cubridgo/dbcore/internal/commcfg"
)

// TranServer owns a list of page-server connection handlers, a
// pointer to whichever one currently serves as the "main" connection,
// and the reconnect daemon that keeps dead connections from being
// permanently lost. Grounded on tran_server.cpp.
type TranServer[OutID, InID ~int32] struct {
	cfg      commcfg.Config
	log      zerolog.Logger
	connType ConnType

	conns []*ConnectionHandler[OutID, InID]

	mainMu sync.RWMutex
	main   *ConnectionHandler[OutID, InID]

	connector *PSConnector[OutID, InID]
}

func NewTranServer[OutID, InID ~int32](connType ConnType, cfg commcfg.Config, log zerolog.Logger) *TranServer[OutID, InID] {
	return &TranServer[OutID, InID]{cfg: cfg, log: log, connType: connType}
}

// RegisterHosts parses a comma-separated host list and creates one
// ConnectionHandler per valid entry, in list order (the order doubles
// as main-connection selection priority, per reset_main_connection's
// "first connected in list order" rule).
func (ts *TranServer[OutID, InID]) RegisterHosts(hosts string) []error {
	hps, errs := commcfg.ParseHostList(hosts)
	for _, hp := range hps {
		ts.conns = append(ts.conns, NewConnectionHandler[OutID, InID](hp.Host, hp.Port, ts.connType, ts.cfg, ts.log))
	}
	return errs
}

// Boot connects to every registered host. usesRemoteStorage controls
// whether zero successful connections is an error (the original's
// local/remote x empty/bad/good truth table): a local-storage
// transaction server can boot with no page servers at all, a
// remote-storage one cannot.
func (ts *TranServer[OutID, InID]) Boot(usesRemoteStorage bool) error {
	if len(ts.conns) == 0 {
		if usesRemoteStorage {
			return ErrNoServerAvailable
		}
		return nil
	}

	var connected int
	for _, c := range ts.conns {
		if err := c.Connect(); err != nil {
			ts.log.Warn().Str("channel", c.ChannelID()).Err(err).Msg("failed to connect to page server")
			continue
		}
		connected++
	}

	ts.resetMainConnection()

	if connected == 0 {
		if usesRemoteStorage {
			return ErrNoServerAvailable
		}
		return nil
	}

	ts.connector = NewPSConnector(ts, ts.cfg.ReconnectInterval, ts.log)
	ts.connector.Start()
	return nil
}

// resetMainConnection scans conns in order and installs the first
// connected one as main, replacing the current main even if that one
// is still connected but comes later in the list.
func (ts *TranServer[OutID, InID]) resetMainConnection() error {
	var candidate *ConnectionHandler[OutID, InID]
	for _, c := range ts.conns {
		if c.IsConnected() {
			candidate = c
			break
		}
	}
	if candidate == nil {
		return ErrNoServerAvailable
	}

	ts.mainMu.Lock()
	defer ts.mainMu.Unlock()
	if ts.main == candidate {
		return nil
	}
	ts.main = candidate
	ts.log.Debug().Str("channel", candidate.ChannelID()).Msg("main connection reset")
	return nil
}

// PushRequest sends a fire-and-forget request on the main connection,
// retrying against a freshly reselected main connection if the current
// one turns out to be dead (spec §4.8: "shared lock for traffic,
// exclusive lock only while swapping the pointer").
func (ts *TranServer[OutID, InID]) PushRequest(msgID OutID, body []byte) error {
	for {
		ts.mainMu.RLock()
		main := ts.main
		ts.mainMu.RUnlock()
		if main == nil {
			return ErrNoServerAvailable
		}

		err := main.PushRequest(msgID, body)
		if err == nil || main.IsConnected() {
			return err
		}
		if rerr := ts.resetMainConnection(); rerr != nil {
			return rerr
		}
	}
}

// SendReceive is PushRequest's synchronous counterpart.
func (ts *TranServer[OutID, InID]) SendReceive(msgID OutID, body []byte) ([]byte, error) {
	for {
		ts.mainMu.RLock()
		main := ts.main
		ts.mainMu.RUnlock()
		if main == nil {
			return nil, ErrNoServerAvailable
		}

		resp, err := main.SendReceive(msgID, body)
		if err == nil || main.IsConnected() {
			return resp, err
		}
		if rerr := ts.resetMainConnection(); rerr != nil {
			return nil, rerr
		}
	}
}

// IsPageServerConnected reports whether any registered connection is
// currently up.
func (ts *TranServer[OutID, InID]) IsPageServerConnected() bool {
	for _, c := range ts.conns {
		if c.IsConnected() {
			return true
		}
	}
	return false
}

// DisconnectAll tears down every connection and stops the reconnect
// daemon, waiting for every teardown to finish before returning
// (mirrors tran_server::disconnect_all_page_servers).
func (ts *TranServer[OutID, InID]) DisconnectAll() {
	if ts.connector != nil {
		ts.connector.Stop()
	}
	dones := make([]<-chan struct{}, 0, len(ts.conns))
	for _, c := range ts.conns {
		dones = append(dones, c.DisconnectAsync())
	}
	for _, d := range dones {
		<-d
	}
	ts.log.Debug().Msg("disconnected from all page servers")
}

// RegisterHandler registers fn for msgID across every connection
// handler, so any peer that sends it gets the same dispatch. Must be
// called after Boot: a ConnectionHandler has no endpoint to register
// against until Connect has run, so calling this first silently skips
// any handler not yet connected.
func (ts *TranServer[OutID, InID]) RegisterHandler(msgID InID, fn comm.Handler) {
	for _, c := range ts.conns {
		_ = c.RegisterHandler(msgID, fn)
	}
}
