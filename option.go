package skkserv

import (
	"time"

	"github.com/Zereker/skkserv/protocol"
)

// options holds the configuration for a connection.
type options struct {
	codec  Codec
	logger Logger

	// onRequest is called for every decoded request, in order.
	// Returning ErrCloseRequested ends the session without a reply.
	onRequest func(req protocol.Request) (protocol.Response, error)

	bufferSize    int           // size of the response queue
	maxReadLength int           // maximum bytes buffered without a complete request
	idleTimeout   time.Duration // read/write deadline; zero disables it
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the request/response codec.
// If not set, protocol.Codec is used.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets how many responses may be
// queued ahead of the writer.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// IdleTimeoutOption returns an Option that ends the session when no bytes
// arrive for d. Zero disables the timeout.
func IdleTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = d
	}
}

// MessageMaxSize returns an Option that limits how many bytes may be
// buffered while waiting for a request to complete.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnRequestOption returns an Option that sets the request handler.
// This callback is required.
func OnRequestOption(cb func(protocol.Request) (protocol.Response, error)) Option {
	return func(o *options) {
		o.onRequest = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
