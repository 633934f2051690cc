package comm

import (
	"github.com/rs/zerolog"
)

// SyncClientServer is a full-duplex connection endpoint that lets
// either side make a synchronous request (Push + SendRecv) while also
// answering requests pushed from the other side (via RegisterHandler
// + Start), all over one Channel. Grounded on
// request_sync_client_server.hpp, which composes exactly these four
// pieces: a request_client_server, a request_sync_send_queue, a
// response_broker, and a response_sequence_number_generator.
//
// OutID is the message-id enum this side sends as new requests; InID
// is the message-id enum this side receives and dispatches.
type SyncClientServer[OutID, InID ~int32] struct {
	ch   *Channel
	log  zerolog.Logger
	rsns *ResponseSequenceNumberGenerator
	brk  *ResponseBroker

	queue    *SyncSendQueue
	autosend *QueueAutosend

	server *RequestServer[InID]
}

func NewSyncClientServer[OutID, InID ~int32](ch *Channel, log zerolog.Logger) *SyncClientServer[OutID, InID] {
	s := &SyncClientServer[OutID, InID]{
		ch:    ch,
		log:   log,
		rsns:  NewResponseSequenceNumberGenerator(),
		brk:   NewResponseBroker(),
		queue: NewSyncSendQueue(),
	}
	s.autosend = NewQueueAutosend(ch, s.queue, func(err error) {
		s.log.Debug().Err(err).Msg("autosend drain failed")
	})
	s.server = NewRequestServer[InID](ch, log)
	s.server.RegisterHandler(InID(IncomingResponse), func(rsn uint64, body []byte) ([]byte, error) {
		s.brk.Deliver(rsn, body)
		return nil, nil
	})
	// A handler's reply is sent by pushing onto the same SyncSendQueue
	// every other outbound frame goes through, so an auto-reply from
	// the receiver goroutine can never race the autosend goroutine's
	// in-flight Channel write (spec §4.5/§4.7's single-sender
	// invariant).
	s.server.SetReplySink(func(rsn uint64, reply []byte) {
		s.queue.Push(PackMsg(int32(OutgoingResponse), rsn, reply))
		s.autosend.Wake()
	})
	return s
}

// RegisterHandler binds fn for an application-level incoming message
// id. Must be called before Start.
func (s *SyncClientServer[OutID, InID]) RegisterHandler(msgID InID, fn Handler) error {
	return s.server.RegisterHandler(msgID, fn)
}

// Start launches the receiver loop and the autosend drain goroutine.
func (s *SyncClientServer[OutID, InID]) Start() {
	s.server.Start()
	s.autosend.Start()
}

// Stop tears down both goroutines and unblocks any pending SendRecv
// callers with ErrBrokerStopped.
func (s *SyncClientServer[OutID, InID]) Stop() {
	s.brk.Stop()
	s.autosend.Stop()
	s.server.Stop()
}

// Push enqueues a fire-and-forget message for the autosend goroutine
// to drain; it does not block on the network and expects no reply.
func (s *SyncClientServer[OutID, InID]) Push(msgID OutID, body []byte) {
	s.queue.Push(PackMsg(int32(msgID), 0, body))
	s.autosend.Wake()
}

// SendRecv sends a request tagged with a fresh rsn and blocks the
// calling goroutine until the matching reply arrives (delivered to
// this endpoint's broker by its own IncomingResponse handler, on its
// own receiver loop), or the endpoint is stopped.
func (s *SyncClientServer[OutID, InID]) SendRecv(msgID OutID, body []byte) ([]byte, error) {
	rsn := s.rsns.Next()
	s.queue.Push(PackMsg(int32(msgID), rsn, body))
	s.autosend.Wake()
	return s.brk.Wait(rsn)
}

// Respond sends reply back correlated to rsn, using the reserved
// OutgoingResponse message id so the peer's SyncClientServer routes it
// to its ResponseBroker instead of its application handler table. Like
// every other send on this endpoint, it only enqueues onto the
// SyncSendQueue and wakes the autosend goroutine — it never writes the
// Channel itself, so it's safe to call synchronously from a handler
// running on the receiver goroutine (spec §4.7 Ordering).
func (s *SyncClientServer[OutID, InID]) Respond(rsn uint64, reply []byte) error {
	if rsn == 0 {
		return nil
	}
	s.queue.Push(PackMsg(int32(OutgoingResponse), rsn, reply))
	s.autosend.Wake()
	return nil
}
