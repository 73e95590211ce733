package protocol

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Response is a reply to a request. The set of implementations is closed:
// Candidates, Version and HostInfo.
type Response interface {
	writeTo(w io.StringWriter) error
}

// Candidates replies to Convert and Complete. An empty list has its own
// framing and is not an error.
type Candidates []string

// Version replies to GetVersion with the server's build identity.
type Version struct {
	Name    string
	Version string
}

// HostInfo replies to GetHostInfo with a fixed placeholder.
type HostInfo struct{}

const (
	delimiter     = "/"
	noCandidates  = "4\n"
	hostInfoReply = "dummy "
	// escapedDelimiter is the octal escape substituted for a literal '/'.
	escapedDelimiter = `\057`
)

func (c Candidates) writeTo(w io.StringWriter) error {
	if len(c) == 0 {
		_, err := w.WriteString(noCandidates)
		return err
	}
	if _, err := w.WriteString("1" + delimiter); err != nil {
		return err
	}
	for _, candidate := range c {
		if _, err := w.WriteString(Escape(candidate)); err != nil {
			return err
		}
		if _, err := w.WriteString(delimiter); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

func (v Version) writeTo(w io.StringWriter) error {
	_, err := w.WriteString(v.Name + delimiter + v.Version + " ")
	return err
}

func (HostInfo) writeTo(w io.StringWriter) error {
	_, err := w.WriteString(hostInfoReply)
	return err
}

// Encode appends the wire form of resp to w. It only fails when w does.
func Encode(w io.StringWriter, resp Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	return errors.Wrap(resp.writeTo(w), "write response")
}

// Escape makes a candidate safe to place between delimiters. A candidate
// without '/' is returned unchanged; otherwise every '/' is replaced by
// \057 and the result is wrapped as (concat "...").
func Escape(s string) string {
	if !strings.Contains(s, delimiter) {
		return s
	}
	return `(concat "` + strings.ReplaceAll(s, delimiter, escapedDelimiter) + `")`
}
