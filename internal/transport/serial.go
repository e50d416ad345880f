package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/frame"
	"go.bug.st/serial"
)

const (
	// frameGap is the read timeout. A silent line for this long ends any
	// partial frame, so the reader realigns on the next record.
	frameGap   = 20 * time.Millisecond
	retryPause = 500 * time.Millisecond
)

// Reader reads fixed-size frames from a byte stream and pushes them into a
// Queue. A read returning no bytes marks a gap between frames.
type Reader struct {
	port  io.ReadCloser
	queue *Queue

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// OpenSerial opens a UART (radio bridge) and starts reading frames into queue.
func OpenSerial(path string, baud int, queue *Queue) (*Reader, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(frameGap); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	debug.Info("Serial transport on %s @ %d baud", path, baud)
	return NewReader(port, queue), nil
}

// NewReader starts a goroutine reading frames from port.
func NewReader(port io.ReadCloser, queue *Queue) *Reader {
	r := &Reader{
		port:   port,
		queue:  queue,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reader) run() {
	defer close(r.done)

	buf := make([]byte, 0, 2*frame.Size)
	chunk := make([]byte, 64)
	for {
		n, err := r.port.Read(chunk)
		if r.isClosed() {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				debug.Info("serial transport: end of stream")
				return
			}
			debug.Error(fmt.Errorf("serial read: %w", err))
			buf = buf[:0]
			select {
			case <-r.closed:
				return
			case <-time.After(retryPause):
			}
			continue
		}
		if n == 0 {
			if len(buf) > 0 {
				debug.Verbose("serial: dropping %d stray bytes", len(buf))
				buf = buf[:0]
			}
			continue
		}

		buf = append(buf, chunk[:n]...)
		for len(buf) >= frame.Size {
			raw, err := frame.Decode(buf[:frame.Size])
			if err == nil {
				debug.Verbose("frame id=%d joints=%v", raw.ID, raw.Joints)
				r.queue.Push(raw)
			}
			buf = append(buf[:0], buf[frame.Size:]...)
		}
	}
}

func (r *Reader) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// Done is closed once the reader goroutine has stopped.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Close stops the reader and closes the port.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.port.Close()
		<-r.done
	})
	return err
}
