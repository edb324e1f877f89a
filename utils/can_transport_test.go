package utils

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// pipeReader returns a reader fed by a transmitter over an in-memory pipe.
func pipeReader(t *testing.T) (*SocketCANReader, *socketcan.Transmitter) {
	t.Helper()
	rx, tx := net.Pipe()
	r := newSocketCANReader(rx)
	t.Cleanup(func() { _ = r.Close() })
	return r, socketcan.NewTransmitter(tx)
}

func waitDone(t *testing.T, r *SocketCANReader) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("receive loop did not stop")
	}
}

func TestSocketCANReader_ReadsFrames(t *testing.T) {
	r, tx := pipeReader(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	want := can.Frame{ID: 0x300, Length: 2, Data: can.Data{0xAB, 0xCD}}
	require.NoError(t, tx.TransmitFrame(ctx, want))

	got, err := r.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, tx.Close())
	_, err = r.ReadFrame(ctx)
	assert.ErrorIs(t, err, ErrReaderClosed)
}

func TestSocketCANReader_KeepsNewestWhenBehind(t *testing.T) {
	r, tx := pipeReader(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const sent = 200
	for id := uint32(1); id <= sent; id++ {
		require.NoError(t, tx.TransmitFrame(ctx, can.Frame{ID: id, Length: 1, Data: can.Data{byte(id)}}))
	}
	require.NoError(t, tx.Close())
	waitDone(t, r)

	var ids []uint32
	for {
		f, err := r.ReadFrame(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrReaderClosed)
			break
		}
		ids = append(ids, f.ID)
	}
	require.Len(t, ids, readerBufferSize)
	assert.Equal(t, uint32(sent-readerBufferSize+1), ids[0])
	assert.Equal(t, uint32(sent), ids[len(ids)-1])
	for i := 1; i < len(ids); i++ {
		assert.Equal(t, ids[i-1]+1, ids[i], "frames stay in arrival order")
	}
}

func TestSocketCANReader_ContextCancel(t *testing.T) {
	r, _ := pipeReader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
