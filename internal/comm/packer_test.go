package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackerUnpackerRoundTrip(t *testing.T) {
	p := NewPacker()
	p.Int32(-42).Uint64(123456789).Byte(0xAB).String("hello")

	u := NewUnpacker(p.Bytes())
	i, err := u.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(-42), i)

	r, err := u.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(123456789), r)

	b, err := u.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), b)

	s, err := u.String()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestUnpackerErrorsOnShortPayload(t *testing.T) {
	u := NewUnpacker([]byte{1, 2})
	_, err := u.Int32()
	require.ErrorIs(t, err, ErrShortPayload)
}

func TestUnpackerBytesFieldRejectsTruncatedLength(t *testing.T) {
	p := NewPacker()
	p.Int32(100) // claims 100 bytes follow, but none do
	u := NewUnpacker(p.Bytes())
	_, err := u.BytesField()
	require.ErrorIs(t, err, ErrShortPayload)
}

func TestUnpackerRemainderReturnsUnconsumedBytes(t *testing.T) {
	p := NewPacker()
	p.Int32(1)
	p.buf = append(p.buf, []byte("tail")...)

	u := NewUnpacker(p.Bytes())
	_, err := u.Int32()
	require.NoError(t, err)
	require.Equal(t, []byte("tail"), u.Remainder())
}

func TestPackMsgUnpackMsgHeaderRoundTrip(t *testing.T) {
	payload := PackMsg(7, 42, []byte("body"))

	msgID, rsn, u, err := UnpackMsgHeader(payload)
	require.NoError(t, err)
	require.Equal(t, int32(7), msgID)
	require.Equal(t, uint64(42), rsn)
	require.Equal(t, []byte("body"), u.Remainder())
}

func TestPackMsgZeroRSNIsFireAndForgetSentinel(t *testing.T) {
	payload := PackMsg(1, 0, nil)
	_, rsn, _, err := UnpackMsgHeader(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(0), rsn)
}
