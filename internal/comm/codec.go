package comm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

// Codec selects an optional compression scheme applied to a frame's
// payload before it is length-prefixed and written to the wire. Large
// page-transfer payloads between a transaction server and a page
// server (spec §4.8) are the intended user; small control messages
// should stay uncompressed (CodecNone).
type Codec byte

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecLZ4
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

// Compress returns payload compressed under c. CodecNone is a no-op.
func Compress(c Codec, payload []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return payload, nil
	case CodecSnappy:
		return snappy.Encode(nil, payload), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), nil
	default:
		return nil, fmt.Errorf("comm: unknown codec %d", byte(c))
	}
}

// Decompress reverses Compress.
func Decompress(c Codec, payload []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return payload, nil
	case CodecSnappy:
		return snappy.Decode(nil, payload)
	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return out, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)
	default:
		return nil, fmt.Errorf("comm: unknown codec %d", byte(c))
	}
}

// SendFrameCodec writes a frame whose payload is prefixed with a single
// codec byte, compressing the body when codec != CodecNone.
func (c *Channel) SendFrameCodec(codec Codec, payload []byte) error {
	body, err := Compress(codec, payload)
	if err != nil {
		return err
	}
	framed := make([]byte, 1+len(body))
	framed[0] = byte(codec)
	copy(framed[1:], body)
	return c.SendFrame(framed)
}

// RecvFrameCodec reads a frame written by SendFrameCodec and returns
// the decompressed payload.
func (c *Channel) RecvFrameCodec() ([]byte, error) {
	framed, err := c.RecvFrame()
	if err != nil {
		return nil, err
	}
	if len(framed) < 1 {
		return nil, ErrShortPayload
	}
	codec := Codec(framed[0])
	return Decompress(codec, framed[1:])
}
