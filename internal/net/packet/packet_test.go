package packet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriterReaderFields(t *testing.T) {
	w := NewWriterWithOpcode(C_OPCODE_TRANSFER)
	w.WriteC(7)
	w.WriteH(0x1234)
	w.WriteD(-2)
	w.WriteQ(1 << 40)
	w.WriteS("bob")

	r := NewReader(w.Bytes())
	assert.Equal(t, C_OPCODE_TRANSFER, r.Opcode())
	assert.Equal(t, byte(7), r.ReadC())
	assert.Equal(t, uint16(0x1234), r.ReadH())
	assert.Equal(t, int32(-2), r.ReadD())
	assert.Equal(t, uint64(1<<40), r.ReadQ())
	assert.Equal(t, "bob", r.ReadS())
	assert.Zero(t, r.Remaining())
	assert.False(t, r.Short())
}

func TestReaderShort(t *testing.T) {
	r := NewReader([]byte{C_OPCODE_KITTY, 1, 2})
	assert.Zero(t, r.ReadQ())
	assert.True(t, r.Short())

	r = NewReader([]byte{C_OPCODE_LOGIN, 'a', 'b'})
	assert.Equal(t, "ab", r.ReadS())
	assert.True(t, r.Short(), "missing terminator")

	r = NewReader([]byte{C_OPCODE_LOGIN, 0xff, 0xfe, 0})
	assert.Empty(t, r.ReadS())
	assert.True(t, r.Short(), "invalid utf-8")
}

func TestWriteSDropsNul(t *testing.T) {
	w := NewWriter()
	w.WriteS("a\x00b")
	assert.Equal(t, []byte{'a', 'b', 0}, w.Bytes())
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var got []byte
	reg.Register(C_OPCODE_KITTY, []SessionState{StateAuthenticated}, func(sess any, r *Reader) {
		got = append(got, r.ReadC())
	})
	reg.Register(C_OPCODE_QUIT, []SessionState{StateAuthenticated}, func(sess any, r *Reader) {
		panic("boom")
	})

	require.NoError(t, reg.Dispatch(nil, StateAuthenticated, []byte{C_OPCODE_KITTY, 9}))
	assert.Equal(t, []byte{9}, got)

	err := reg.Dispatch(nil, StateVersionOK, []byte{C_OPCODE_KITTY, 9})
	assert.True(t, errors.Is(err, ErrStateNotAllowed))

	assert.ErrorIs(t, reg.Dispatch(nil, StateAuthenticated, []byte{0x7f}), ErrUnknownOpcode)
	assert.Error(t, reg.Dispatch(nil, StateAuthenticated, []byte{C_OPCODE_QUIT}), "panic is recovered")
	assert.Error(t, reg.Dispatch(nil, StateAuthenticated, nil))
}
