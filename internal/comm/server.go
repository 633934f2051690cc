package comm

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Reserved message ids used by the response-correlation layer
// (syncendpoint.go) on top of whatever application message space a
// RequestServer/RequestClient pair is instantiated with. Application
// MsgID enums must leave these values unused (spec §4.7).
//
// OutId and InId are independent enum types (spec §4.4), so the two
// reserved ids are named for the direction each side observes a reply
// frame from: Respond tags an outgoing reply with OutgoingResponse;
// the peer's dispatch loop recognizes the same frame as
// IncomingResponse and routes it to its ResponseBroker instead of its
// application handler table. Both share one numeric wire value — a
// reply frame carries a single msg_id, not two — named twice so each
// side's code reads correctly for the direction it's looking from.
const (
	OutgoingResponse int32 = -1
	IncomingResponse int32 = -1
)

// Handler processes one incoming message body and optionally returns a
// reply payload. RequestServer itself has no notion of a response
// channel — rsn is opaque to it, just a field dispatch extracts from
// the frame and hands back to the handler (spec §4.2: bare
// request_server carries no rsn concept of its own). Whether and how a
// non-nil reply is actually sent is entirely up to whatever SetReplySink
// installs; with no sink installed a reply is silently dropped.
type Handler func(rsn uint64, body []byte) (reply []byte, err error)

// RequestServer dispatches incoming frames on a Channel to registered
// per-message-id handlers. MsgID is any ordered integer-like type so a
// caller can use its own enum for client->server and server->client
// message spaces without an interface-boxing cost per dispatch.
//
// Mirrors request_server.hpp: handlers must all be registered before
// Start is called; Start launches the single receiver loop that owns
// the channel's read side for the rest of the connection's life.
type RequestServer[MsgID ~int32] struct {
	ch  *Channel
	log zerolog.Logger

	mu        sync.Mutex
	handlers  map[MsgID]Handler
	replySink func(rsn uint64, reply []byte)
	started   atomic.Bool

	wg sync.WaitGroup
}

func NewRequestServer[MsgID ~int32](ch *Channel, log zerolog.Logger) *RequestServer[MsgID] {
	return &RequestServer[MsgID]{
		ch:       ch,
		log:      log,
		handlers: make(map[MsgID]Handler),
	}
}

// RegisterHandler binds fn to msgID. Must be called before Start.
func (s *RequestServer[MsgID]) RegisterHandler(msgID MsgID, fn Handler) error {
	if s.started.Load() {
		return ErrHandlersFrozen
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgID] = fn
	return nil
}

// SetReplySink installs the function dispatch calls with a handler's
// non-nil reply, instead of writing it to the channel itself.
// RequestServer has no reply mechanism of its own (see Handler); a
// composing layer like SyncClientServer installs a sink that pushes
// the reply onto its SyncSendQueue, so the reply goes out through the
// same single-writer autosend path as every other outbound frame
// (spec §4.7: "respond only enqueues — it never writes the socket").
// Must be called before Start, alongside RegisterHandler.
func (s *RequestServer[MsgID]) SetReplySink(fn func(rsn uint64, reply []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replySink = fn
}

// Start launches the receiver loop in its own goroutine and returns
// immediately. Calling Start twice is a no-op.
func (s *RequestServer[MsgID]) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop closes the underlying channel, which unblocks the receiver
// loop, and waits for it to exit.
func (s *RequestServer[MsgID]) Stop() {
	s.ch.Close()
	s.wg.Wait()
}

func (s *RequestServer[MsgID]) loop() {
	defer s.wg.Done()
	for {
		payload, err := s.ch.RecvFrame()
		if err != nil {
			if err == ErrNoData {
				continue
			}
			s.log.Debug().Str("channel", s.ch.ChannelID()).Err(err).Msg("request server receiver exiting")
			return
		}
		s.dispatch(payload)
	}
}

func (s *RequestServer[MsgID]) dispatch(payload []byte) {
	rawID, rsn, u, err := UnpackMsgHeader(payload)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}
	msgID := MsgID(rawID)

	s.mu.Lock()
	fn, ok := s.handlers[msgID]
	sink := s.replySink
	s.mu.Unlock()
	if !ok {
		s.log.Warn().Int32("msg_id", int32(msgID)).Msg("unknown message id")
		return
	}

	body := u.Remainder()
	reply, err := fn(rsn, body)
	if err != nil {
		s.log.Warn().Int32("msg_id", int32(msgID)).Err(err).Msg("handler error")
		return
	}
	if reply == nil || rsn == 0 {
		return
	}
	if sink == nil {
		s.log.Debug().Int32("msg_id", int32(msgID)).Msg("handler returned a reply but no reply sink is installed; dropping")
		return
	}
	sink(rsn, reply)
}
