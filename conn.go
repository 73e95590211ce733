// Package skkserv implements a dictionary server speaking the skkserv
// protocol: single-digit commands with space-terminated payloads over a
// persistent TCP connection.
package skkserv

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/skkserv/protocol"
)

// Errors returned by connection operations.
var (
	// ErrInvalidCodec is returned when a nil codec is provided.
	ErrInvalidCodec = errors.New("invalid codec")
	// ErrInvalidOnRequest is returned when no request handler is provided.
	ErrInvalidOnRequest = errors.New("invalid on request callback")
	// ErrMessageTooLarge is returned when a request exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrUnexpectedEOF is returned when the peer disconnects in the middle of a request.
	ErrUnexpectedEOF = errors.New("connection closed mid-request")
	// ErrCloseRequested is returned by request handlers to end the session
	// without replying.
	ErrCloseRequested = errors.New("close requested")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Default configuration values.
const (
	// defaultBufferSize is the default number of queued responses.
	defaultBufferSize = 16
	// defaultMaxPackageLength is the default maximum size of a pending request.
	defaultMaxPackageLength = 4096
	// readChunkSize is how many bytes a single read may append to the buffer.
	readChunkSize = 1024
)

// Conn is one client session. It owns the connection's read buffer and
// write buffer; requests are answered strictly in the order received.
type Conn struct {
	rawConn *net.TCPConn
	logger  Logger

	opts options

	readBuf bytes.Buffer
	writer  *bufio.Writer

	responses chan protocol.Response
	closed    atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc // set by Run, guarded by mu
}

// NewConn creates a new session around the given TCP connection.
// Returns an error if the request handler is missing.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	opts := options{codec: protocol.Codec{}}
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.idleTimeout < 0 {
		opts.idleTimeout = 0
	}

	if opts.codec == nil {
		return ErrInvalidCodec
	}

	if opts.onRequest == nil {
		return ErrInvalidOnRequest
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

func newConnWithOptions(c *net.TCPConn, opts options) *Conn {
	return &Conn{
		rawConn:   c,
		logger:    withAttrs(opts.logger, "addr", c.RemoteAddr()),
		opts:      opts,
		writer:    bufio.NewWriter(c),
		responses: make(chan protocol.Response, opts.bufferSize),
	}
}

// Run serves the session until the client asks to close, disconnects,
// sends something the codec rejects, or ctx is canceled. A read loop
// decodes and dispatches requests while a write loop encodes and flushes
// the responses. The connection is closed when Run returns.
//
// A client that closes the connection between requests, or sends a close
// request, ends the session with a nil error. Calling Close ends Run with
// context.Canceled; calling Run on a closed Conn returns ErrConnectionClosed.
func (c *Conn) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	ctx, c.cancel = context.WithCancel(ctx)
	cancel := c.cancel
	c.mu.Unlock()
	defer cancel()

	c.logger.Info("connection established")
	c.logger.Debug("connection options",
		"buffer_size", c.opts.bufferSize,
		"max_read_length", c.opts.maxReadLength,
		"idle_timeout", c.opts.idleTimeout)

	group, child := errgroup.WithContext(ctx)
	stop := context.AfterFunc(child, c.closeConn)
	defer stop()

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", errAttr(err))
	} else {
		c.logger.Info("connection closed")
	}

	return err
}

// Close ends the session and closes the underlying TCP connection.
// Safe to call multiple times and concurrently with Run.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop appends incoming bytes to the read buffer and handles every
// complete request in it. It is the only sender on c.responses and closes
// it on return, which lets writeLoop flush what is queued and finish.
func (c *Conn) readLoop(ctx context.Context) error {
	defer close(c.responses)

	chunk := make([]byte, readChunkSize)
	for {
		done, err := c.handleBuffered(ctx)
		if err != nil || done {
			return err
		}

		if c.readBuf.Len() > c.opts.maxReadLength {
			return errors.Wrapf(ErrMessageTooLarge, "%d bytes pending", c.readBuf.Len())
		}

		if c.opts.idleTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))
		}

		n, err := c.rawConn.Read(chunk)
		c.readBuf.Write(chunk[:n])
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, io.EOF) {
			c.logger.Debug("read error", errAttr(err))
			return errors.Wrap(err, "read")
		}

		// The peer has stopped sending; answer what is complete first.
		if done, err := c.handleBuffered(ctx); err != nil || done {
			return err
		}
		if c.readBuf.Len() > 0 {
			return errors.Wrapf(ErrUnexpectedEOF, "%d bytes pending", c.readBuf.Len())
		}
		return nil
	}
}

// handleBuffered decodes and dispatches requests until the buffer holds
// no complete request. done reports that the client asked to close.
func (c *Conn) handleBuffered(ctx context.Context) (done bool, err error) {
	for {
		req, ok, err := c.opts.codec.Decode(&c.readBuf)
		if err != nil {
			return false, errors.Wrap(err, "decode")
		}
		if !ok {
			return false, nil
		}

		c.logger.Debug("request", "command", req.Command, "payload", req.Payload)

		resp, err := c.opts.onRequest(req)
		if errors.Is(err, ErrCloseRequested) {
			c.logger.Debug("close requested")
			return true, nil
		}
		if err != nil {
			return false, err
		}

		select {
		case c.responses <- resp:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// writeLoop encodes queued responses and flushes them to the connection.
// Returns nil once the read loop has finished and every response is written.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-c.responses:
			if !ok {
				return nil
			}
			if err := c.write(resp); err != nil {
				return err
			}
		}
	}
}

// write encodes resp into the write buffer. The buffer is flushed once no
// further responses are queued, so pipelined requests share a write.
func (c *Conn) write(resp protocol.Response) error {
	c.logger.Debug("response", "response", resp)

	if err := c.opts.codec.Encode(c.writer, resp); err != nil {
		return errors.Wrap(err, "encode")
	}
	if len(c.responses) > 0 {
		return nil
	}

	if c.opts.idleTimeout > 0 {
		_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.idleTimeout))
	}
	if err := c.writer.Flush(); err != nil {
		c.logger.Debug("write error", errAttr(err))
		return errors.Wrap(err, "flush")
	}
	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	_ = c.rawConn.Close()
}
