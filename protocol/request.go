// Package protocol implements the skkserv wire codec: an incremental
// request decoder over a growable buffer and a response encoder that
// writes the exact reply framing, including candidate escaping.
package protocol

import (
	"bytes"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Command is the single leading byte identifying a request.
type Command byte

const (
	// CloseConnection asks the server to close the connection.
	CloseConnection Command = '0'
	// Convert requests candidates for a payload.
	Convert Command = '1'
	// GetVersion requests the server name and version.
	GetVersion Command = '2'
	// GetHostInfo requests the host info string.
	GetHostInfo Command = '3'
	// Complete requests completion candidates for a payload.
	Complete Command = '4'
)

// payloadTerminator ends the payload of Convert and Complete requests.
const payloadTerminator = ' '

func (c Command) String() string {
	switch c {
	case CloseConnection:
		return "close"
	case Convert:
		return "convert"
	case GetVersion:
		return "version"
	case GetHostInfo:
		return "hostinfo"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// HasPayload reports whether the command carries a space-terminated payload.
func (c Command) HasPayload() bool {
	return c == Convert || c == Complete
}

// Request is one decoded client request. Payload is only set for
// Convert and Complete and never includes the terminating space.
type Request struct {
	Command Command
	Payload string
}

// Decode parses at most one request from the front of buf.
//
// It returns ok == false with a nil error when buf does not yet hold a
// complete request; in that case buf is left untouched so the call can be
// repeated once more bytes have been appended. On success the request's
// bytes are consumed from buf.
//
// An unknown command byte yields a *CommandError and consumes nothing.
// A payload that is not valid UTF-8 yields ErrInvalidEncoding after the
// whole request, terminator included, has been consumed.
func Decode(buf *bytes.Buffer) (req Request, ok bool, err error) {
	data := buf.Bytes()
	if len(data) == 0 {
		return Request{}, false, nil
	}

	cmd := Command(data[0])
	switch cmd {
	case CloseConnection, GetVersion, GetHostInfo:
		buf.Next(1)
		return Request{Command: cmd}, true, nil
	case Convert, Complete:
		i := bytes.IndexByte(data, payloadTerminator)
		if i < 0 {
			return Request{}, false, nil
		}
		frame := buf.Next(i + 1)
		payload := frame[1:i]
		if !utf8.Valid(payload) {
			return Request{}, false, errors.Wrapf(ErrInvalidEncoding, "%s payload %q", cmd, payload)
		}
		return Request{Command: cmd, Payload: string(payload)}, true, nil
	default:
		return Request{}, false, &CommandError{Command: data[0]}
	}
}
