package dcc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mahirashab/irc-client/limits"
	"github.com/mahirashab/irc-client/transport"
	"github.com/sirupsen/logrus"
)

// AckWriteTimeout bounds a single acknowledgment write.
const AckWriteTimeout = 10 * time.Second

// Channel is the byte stream from the serving peer. A read pump hands chunks
// to the owner in arrival order; acknowledgments are written by short-lived
// goroutines chained so they reach the wire one at a time and in order.
type Channel struct {
	addr string
	conn net.Conn

	encoder AckEncoder

	chunks  chan []byte
	closed  chan error
	ackErrs chan error
	done    chan struct{}

	ackMu     sync.Mutex
	ackTail   chan struct{}
	ackFailed atomic.Bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open dials addr and starts receiving.
func Open(ctx context.Context, dialer transport.Dialer, addr string) (*Channel, error) {
	logrus.WithFields(logrus.Fields{
		"function": "dcc.Open",
		"peer":     addr,
	}).Info("Opening data channel")

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dcc.Open",
			"peer":     addr,
			"error":    err.Error(),
		}).Error("Failed to open data channel")
		return nil, newError(OpDial, addr, err)
	}

	tail := make(chan struct{})
	close(tail)

	c := &Channel{
		addr:    addr,
		conn:    conn,
		chunks:  make(chan []byte),
		closed:  make(chan error, 1),
		ackErrs: make(chan error, 1),
		done:    make(chan struct{}),
		ackTail: tail,
	}

	c.wg.Add(1)
	go c.readPump()

	return c, nil
}

// readPump reads until the peer closes or Close is called. Chunks are
// delivered unbuffered so the closure is only reported after every chunk
// before it has been taken.
func (c *Channel) readPump() {
	defer c.wg.Done()

	for {
		buf := make([]byte, limits.ReceiveBufferSize)
		n, err := c.conn.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- buf[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.closed <- newError(OpRead, c.addr, err)
			return
		}
	}
}

// Chunks delivers received data in arrival order.
func (c *Channel) Chunks() <-chan []byte {
	return c.chunks
}

// Closed delivers the error that ended the stream, io.EOF wrapped for a
// clean close by the peer.
func (c *Channel) Closed() <-chan error {
	return c.closed
}

// AckErrors delivers the first acknowledgment write failure.
func (c *Channel) AckErrors() <-chan error {
	return c.ackErrs
}

// Width returns the acknowledgment width currently in use.
func (c *Channel) Width() Width {
	return c.encoder.Width()
}

// Ack sends progress to the peer without blocking the caller. It must be
// called from a single goroutine, the one that consumes Chunks.
func (c *Channel) Ack(progress uint64) {
	payload, ok := c.encoder.Encode(progress)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Ack",
			"peer":     c.addr,
			"progress": progress,
		}).Debug("Progress exceeds every acknowledgment width, skipping")
		return
	}

	prev := c.ackTail
	next := make(chan struct{})
	c.ackTail = next

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(next)
		<-prev

		c.ackMu.Lock()
		defer c.ackMu.Unlock()

		if c.ackFailed.Load() {
			return
		}

		err := c.conn.SetWriteDeadline(time.Now().Add(AckWriteTimeout))
		if err == nil {
			_, err = c.conn.Write(payload)
		}
		if err != nil {
			c.failAck(err, progress)
		}
	}()
}

func (c *Channel) failAck(err error, progress uint64) {
	if !c.ackFailed.CompareAndSwap(false, true) {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Ack",
		"peer":     c.addr,
		"progress": progress,
		"error":    err.Error(),
	}).Warn("Acknowledgment write failed")
	c.ackErrs <- newError(OpAck, c.addr, err)
}

// Close lets queued acknowledgments finish, closes the socket and waits for
// every goroutine of the channel. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.ackTail
		err = c.conn.Close()
		c.wg.Wait()

		logrus.WithFields(logrus.Fields{
			"function": "dcc.Close",
			"peer":     c.addr,
		}).Debug("Data channel closed")
	})
	return err
}
