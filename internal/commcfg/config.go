// Package commcfg holds the plain configuration knobs the transport
// and server layers read at construction time. It deliberately does
// not load configuration from files, environment variables, or flags
// — spec.md excludes "configuration loading" from scope — it only
// models the knobs themselves and the one piece of string parsing the
// original tran_server does inline (a comma-separated page-server host
// list).
package commcfg

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HostPort is a single page-server endpoint.
type HostPort struct {
	Host string
	Port int
}

func (hp HostPort) String() string {
	return fmt.Sprintf("%s:%d", hp.Host, hp.Port)
}

// Config holds the transport and server knobs (spec §6.3). The server
// package reads ConnectTimeout and ReconnectInterval; the other fields
// are carried but not read (see each field).
type Config struct {
	// ConnectTimeout bounds a single dial attempt to a page server.
	ConnectTimeout time.Duration
	// PollTimeout is not read by the server or transport code: a
	// connected channel's reads are bounded by ConnectTimeout, the
	// timeout ConnectionHandler.Connect passes to comm.Dial.
	PollTimeout time.Duration
	// ReconnectInterval is how often PSConnector retries Connect on
	// every idle connection handler (spec §4.8: "5 second daemon").
	ReconnectInterval time.Duration
	// DisconnectSweepInterval is not read by AsyncDisconnectHandler,
	// whose sweep interval is fixed at 1 second.
	DisconnectSweepInterval time.Duration
	// MaxFrameSize is not read by comm.Channel, whose frame limit is
	// comm.DefaultMaxFrameSize.
	MaxFrameSize int32
	// DeadlockDetectInterval is not read by the lock manager, whose
	// detector interval comes from lock.Config.DeadlockDetectInterval.
	DeadlockDetectInterval time.Duration
}

// DefaultConfig returns knob values matching the original's literal
// constants (tran_server.cpp's 5s reconnect loop,
// async_disconnect_handler.cpp's 1s sweep).
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:          5 * time.Second,
		PollTimeout:             100 * time.Millisecond,
		ReconnectInterval:       5 * time.Second,
		DisconnectSweepInterval: 1 * time.Second,
		MaxFrameSize:            64 << 20,
		DeadlockDetectInterval:  1 * time.Second,
	}
}

// ParseHostList parses a comma-separated "host:port,host:port" string
// as register_connection_handlers does: split on comma, parse each
// token independently, skip (and report) malformed tokens rather than
// failing the whole list, since a single bad entry in a wide cluster
// config shouldn't prevent connecting to the rest.
func ParseHostList(s string) ([]HostPort, []error) {
	var out []HostPort
	var errs []error
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		hp, err := parseHostPort(tok)
		if err != nil {
			errs = append(errs, fmt.Errorf("commcfg: %q: %w", tok, err))
			continue
		}
		out = append(out, hp)
	}
	return out, errs
}

func parseHostPort(tok string) (HostPort, error) {
	idx := strings.LastIndexByte(tok, ':')
	if idx < 0 {
		return HostPort{}, fmt.Errorf("missing ':port'")
	}
	host := tok[:idx]
	if host == "" {
		return HostPort{}, fmt.Errorf("empty host")
	}
	port, err := strconv.Atoi(tok[idx+1:])
	if err != nil {
		return HostPort{}, fmt.Errorf("bad port: %w", err)
	}
	if port <= 0 || port > 65535 {
		return HostPort{}, fmt.Errorf("port %d out of range", port)
	}
	return HostPort{Host: host, Port: port}, nil
}
