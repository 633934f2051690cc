package comm

import "github.com/rs/zerolog"

// RequestClientServer pairs a RequestClient and a RequestServer over
// the same Channel, for peers that both send requests and answer
// them on one connection (spec §4.4: "a connection is full-duplex;
// either side may originate"). ClMsgID is the message-id space this
// side sends, SrvMsgID the space it receives and dispatches.
type RequestClientServer[ClMsgID, SrvMsgID ~int32] struct {
	*RequestClient[ClMsgID]
	*RequestServer[SrvMsgID]
}

func NewRequestClientServer[ClMsgID, SrvMsgID ~int32](ch *Channel, log zerolog.Logger) *RequestClientServer[ClMsgID, SrvMsgID] {
	return &RequestClientServer[ClMsgID, SrvMsgID]{
		RequestClient: NewRequestClient[ClMsgID](ch),
		RequestServer: NewRequestServer[SrvMsgID](ch, log),
	}
}
