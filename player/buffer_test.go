package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferHandshake(t *testing.T) {
	r := NewRingBuffer(4, 2)
	require.True(t, r.IsValid())
	assert.Equal(t, 4, r.Size())

	n, err := r.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	require.NoError(t, r.RequestConsume(10*time.Millisecond))
	assert.Equal(t, 4, r.BytesWritten())
	assert.Equal(t, []byte("abcd"), r.Buffer())
	assert.ErrorIs(t, r.RequestConsume(10*time.Millisecond), ErrIllegalState, "previous chunk not acknowledged")
	require.NoError(t, r.Consumed())

	require.NoError(t, r.RequestConsume(10*time.Millisecond))
	assert.Equal(t, []byte("ef"), r.Buffer())
	require.NoError(t, r.Consumed())
	assert.ErrorIs(t, r.Consumed(), ErrIllegalState)

	assert.ErrorIs(t, r.RequestConsume(10*time.Millisecond), ErrTimeout)
}

func TestRingBufferCloseDrains(t *testing.T) {
	r := NewRingBuffer(4, 2)
	_, err := r.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	require.NoError(t, r.RequestConsume(time.Millisecond))
	assert.Equal(t, 3, r.BytesWritten())
	require.NoError(t, r.Consumed())

	assert.ErrorIs(t, r.RequestConsume(time.Millisecond), ErrClosed)
	_, err = r.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRingBufferWriteBlocksUntilConsumed(t *testing.T) {
	r := NewRingBuffer(2, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := r.WriteContext(ctx, []byte("abcd"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, n, "only the first slot fits")

	require.NoError(t, r.RequestConsume(time.Millisecond))
	require.NoError(t, r.Consumed())

	n, err = r.WriteContext(context.Background(), []byte("cd"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRingBufferInvalid(t *testing.T) {
	r := NewRingBuffer(0, 1)
	assert.False(t, r.IsValid())
	_, err := r.Write([]byte("a"))
	assert.ErrorIs(t, err, ErrBufferUnavailable)
}
