package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PSConnector periodically retries Connect on every IDLE connection
// handler and, on success, reselects the main connection. Grounded on
// tran_server.cpp's m_ps_connector, a 5-second background daemon.
type PSConnector[OutID, InID ~int32] struct {
	ts       *TranServer[OutID, InID]
	interval time.Duration
	log      zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPSConnector[OutID, InID ~int32](ts *TranServer[OutID, InID], interval time.Duration, log zerolog.Logger) *PSConnector[OutID, InID] {
	return &PSConnector[OutID, InID]{
		ts:       ts,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

func (p *PSConnector[OutID, InID]) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop requests the loop exit and waits for it to do so. Safe to call
// once; matches terminate()'s join semantics.
func (p *PSConnector[OutID, InID]) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *PSConnector[OutID, InID]) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.retryDeadConnections()
		}
	}
}

func (p *PSConnector[OutID, InID]) retryDeadConnections() {
	reconnected := false
	for _, c := range p.ts.conns {
		if c.IsConnected() {
			continue
		}
		c.mu.Lock()
		idle := c.state == StateIdle
		c.mu.Unlock()
		if !idle {
			continue
		}
		if err := c.Connect(); err != nil {
			p.log.Debug().Str("channel", c.ChannelID()).Err(err).Msg("reconnect attempt failed")
			continue
		}
		reconnected = true
		p.log.Debug().Str("channel", c.ChannelID()).Msg("reconnected to page server")
	}
	if reconnected {
		p.ts.resetMainConnection()
	}
}
