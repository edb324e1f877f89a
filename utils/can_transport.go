package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader defines the interface for reading CAN frames
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

var ErrReaderClosed = errors.New("can reader closed")

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANReader receives frames on a single background goroutine so
// that ReadFrame can honour context cancellation.
type SocketCANReader struct {
	conn   net.Conn
	frames chan can.Frame
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// readerBufferSize bounds how many received frames wait for ReadFrame.
const readerBufferSize = 64

func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return newSocketCANReader(conn), nil
}

func newSocketCANReader(conn net.Conn) *SocketCANReader {
	r := &SocketCANReader{
		conn:   conn,
		frames: make(chan can.Frame, readerBufferSize),
		done:   make(chan struct{}),
	}
	go r.receive(socketcan.NewReceiver(conn))
	return r
}

func (r *SocketCANReader) receive(recv *socketcan.Receiver) {
	defer close(r.done)
	for recv.Receive() {
		if recv.HasErrorFrame() {
			continue
		}
		f := recv.Frame()
		select {
		case r.frames <- f:
			continue
		default:
		}
		// Consumer is behind: drop the oldest frame to make room.
		select {
		case <-r.frames:
		default:
		}
		select {
		case r.frames <- f:
		default:
		}
	}
	r.mu.Lock()
	r.err = recv.Err()
	r.mu.Unlock()
}

// ReadFrame blocks until a frame arrives, the context ends or the socket
// fails. Buffered frames are returned before a socket failure is reported.
func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case f := <-r.frames:
		return f, nil
	default:
	}
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-r.frames:
		return f, nil
	case <-r.done:
		select {
		case f := <-r.frames:
			return f, nil
		default:
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.err != nil {
			return can.Frame{}, fmt.Errorf("socketcan receive: %w", r.err)
		}
		return can.Frame{}, ErrReaderClosed
	}
}

// Close closes the CAN socket
func (r *SocketCANReader) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
