package protocol

import (
	"bytes"
	"io"
)

// Codec binds Decode and Encode into a value usable as a connection codec.
type Codec struct{}

// Decode calls the package-level Decode.
func (Codec) Decode(buf *bytes.Buffer) (Request, bool, error) {
	return Decode(buf)
}

// Encode calls the package-level Encode.
func (Codec) Encode(w io.StringWriter, resp Response) error {
	return Encode(w, resp)
}
