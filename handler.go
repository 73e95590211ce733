package skkserv

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/Zereker/skkserv/protocol"
)

// LookupFunc returns the candidates for an input word.
type LookupFunc func(input string) []string

// Dispatcher answers decoded requests.
type Dispatcher struct {
	lookup  LookupFunc
	version protocol.Version
}

// NewDispatcher returns a Dispatcher that answers Convert and Complete
// requests with lookup and reports this build's Name and Version.
func NewDispatcher(lookup LookupFunc) *Dispatcher {
	return &Dispatcher{
		lookup:  lookup,
		version: protocol.Version{Name: Name, Version: Version},
	}
}

// Dispatch returns the response to req. A CloseConnection request
// yields ErrCloseRequested.
func (d *Dispatcher) Dispatch(req protocol.Request) (protocol.Response, error) {
	switch req.Command {
	case protocol.CloseConnection:
		return nil, ErrCloseRequested
	case protocol.Convert, protocol.Complete:
		return protocol.Candidates(d.lookup(req.Payload)), nil
	case protocol.GetVersion:
		return d.version, nil
	case protocol.GetHostInfo:
		return protocol.HostInfo{}, nil
	default:
		return nil, errors.Errorf("no handler for command %q", byte(req.Command))
	}
}

// Sessions is a Handler that serves every accepted connection as a Conn.
type Sessions struct {
	opts   []Option
	logger Logger
}

// NewSessions returns a Handler whose sessions are built with opts.
// opts must include OnRequestOption.
func NewSessions(opts ...Option) *Sessions {
	s := &Sessions{opts: opts}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s.logger = o.logger
	if s.logger == nil {
		s.logger = defaultLogger()
	}

	return s
}

// Handle runs one session to completion.
func (s *Sessions) Handle(ctx context.Context, conn *net.TCPConn) {
	c, err := NewConn(conn, s.opts...)
	if err != nil {
		s.logger.Error("failed to create session", "addr", conn.RemoteAddr(), errAttr(err))
		_ = conn.Close()
		return
	}

	_ = c.Run(ctx)
}
