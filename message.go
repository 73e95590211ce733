package skkserv

import (
	"bytes"
	"io"

	"github.com/Zereker/skkserv/protocol"
)

// Codec turns buffered bytes into requests and responses into bytes.
// protocol.Codec is the implementation used by the server.
//
// Decode is handed the connection's read buffer, which holds every byte
// received and not yet consumed. It returns ok == false without consuming
// anything when the buffer does not yet hold a complete request, so the
// connection can read more and call it again. This is what makes TCP
// fragmentation transparent to the rest of the server.
type Codec interface {
	// Decode consumes at most one request from the front of buf.
	Decode(buf *bytes.Buffer) (req protocol.Request, ok bool, err error)
	// Encode writes the wire form of a response.
	Encode(w io.StringWriter, resp protocol.Response) error
}
