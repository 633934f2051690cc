package comm

// RequestClient sends fire-and-forget or rsn-tagged messages on a
// Channel. It owns only the write side; a paired RequestServer (or the
// shared channel's receiver loop, in the RequestClientServer case)
// owns the read side. Mirrors request_client.hpp: a thin send-only
// wrapper, all the interesting correlation lives one layer up in
// SyncClientServer.
type RequestClient[MsgID ~int32] struct {
	ch *Channel
}

func NewRequestClient[MsgID ~int32](ch *Channel) *RequestClient[MsgID] {
	return &RequestClient[MsgID]{ch: ch}
}

// Send writes a fire-and-forget message (rsn=0, spec §4.6 sentinel).
func (c *RequestClient[MsgID]) Send(msgID MsgID, body []byte) error {
	return c.ch.SendFrame(PackMsg(int32(msgID), 0, body))
}

// SendWithRSN writes a message tagged with a caller-supplied response
// sequence number, for use by a ResponseBroker-driven send/recv.
func (c *RequestClient[MsgID]) SendWithRSN(msgID MsgID, rsn uint64, body []byte) error {
	return c.ch.SendFrame(PackMsg(int32(msgID), rsn, body))
}
