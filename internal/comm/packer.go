package comm

import (
	"encoding/binary"
)

// Packable is implemented by argument types that know how to encode
// themselves into a payload packer (spec §6.1: typed payload layout
// "[msg_id int32][rsn uint64 optional][user payload]"; PackMsg always
// writes the rsn field, with 0 meaning no reply is expected). This mirrors
// the C++ side's packing_packer/cubpacking::unpacker pair without
// pulling in a general-purpose tagged wire format: the layout here is
// a fixed, caller-known sequence of fields, not a self-describing
// schema.
type Packable interface {
	PackTo(p *Packer)
}

// Unpackable is the receive-side counterpart of Packable.
type Unpackable interface {
	UnpackFrom(u *Unpacker) error
}

// Packer accumulates fields into a single payload buffer in the order
// they are written, matching the packer's write-then-flush usage in
// request_client_server.hpp.
type Packer struct {
	buf []byte
}

func NewPacker() *Packer {
	return &Packer{buf: make([]byte, 0, 64)}
}

func (p *Packer) Bytes() []byte { return p.buf }

func (p *Packer) Int32(v int32) *Packer {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	p.buf = append(p.buf, b[:]...)
	return p
}

func (p *Packer) Uint64(v uint64) *Packer {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	p.buf = append(p.buf, b[:]...)
	return p
}

func (p *Packer) Byte(v byte) *Packer {
	p.buf = append(p.buf, v)
	return p
}

// BytesField appends a length-prefixed byte string.
func (p *Packer) BytesField(v []byte) *Packer {
	p.Int32(int32(len(v)))
	p.buf = append(p.buf, v...)
	return p
}

func (p *Packer) String(v string) *Packer {
	return p.BytesField([]byte(v))
}

func (p *Packer) Pack(v Packable) *Packer {
	v.PackTo(p)
	return p
}

// Unpacker reads fields off a payload buffer in the same order a
// Packer wrote them, advancing an internal cursor.
type Unpacker struct {
	buf []byte
	pos int
}

func NewUnpacker(buf []byte) *Unpacker {
	return &Unpacker{buf: buf}
}

func (u *Unpacker) remaining() int { return len(u.buf) - u.pos }

func (u *Unpacker) Int32() (int32, error) {
	if u.remaining() < 4 {
		return 0, ErrShortPayload
	}
	v := int32(binary.BigEndian.Uint32(u.buf[u.pos:]))
	u.pos += 4
	return v, nil
}

func (u *Unpacker) Uint64() (uint64, error) {
	if u.remaining() < 8 {
		return 0, ErrShortPayload
	}
	v := binary.BigEndian.Uint64(u.buf[u.pos:])
	u.pos += 8
	return v, nil
}

func (u *Unpacker) Byte() (byte, error) {
	if u.remaining() < 1 {
		return 0, ErrShortPayload
	}
	v := u.buf[u.pos]
	u.pos++
	return v, nil
}

func (u *Unpacker) BytesField() ([]byte, error) {
	n, err := u.Int32()
	if err != nil {
		return nil, err
	}
	if n < 0 || u.remaining() < int(n) {
		return nil, ErrShortPayload
	}
	v := u.buf[u.pos : u.pos+int(n)]
	u.pos += int(n)
	return v, nil
}

func (u *Unpacker) String() (string, error) {
	b, err := u.BytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Remainder returns every byte not yet consumed, for callers that
// hand off the rest of the payload to an application-level handler.
func (u *Unpacker) Remainder() []byte {
	return u.buf[u.pos:]
}

// PackMsg builds the typed payload header: msg id, then the response
// sequence number (0 is the reserved "no response wanted" sentinel,
// spec §3.1/§4.6/GLOSSARY), then any caller-supplied body. The rsn
// field is always present so generic dispatch never has to guess
// whether it was written.
func PackMsg(msgID int32, rsn uint64, body []byte) []byte {
	p := NewPacker()
	p.Int32(msgID)
	p.Uint64(rsn)
	p.buf = append(p.buf, body...)
	return p.Bytes()
}

// UnpackMsgHeader reads the leading msg id and rsn off a payload,
// returning an unpacker positioned at the start of the body so the
// caller can continue unpacking per its own message schema.
func UnpackMsgHeader(payload []byte) (msgID int32, rsn uint64, u *Unpacker, err error) {
	u = NewUnpacker(payload)
	if msgID, err = u.Int32(); err != nil {
		return 0, 0, nil, err
	}
	if rsn, err = u.Uint64(); err != nil {
		return 0, 0, nil, err
	}
	return msgID, rsn, u, nil
}
