package skkserv

import (
	"bufio"
	"context"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/skkserv/converter"
	"github.com/Zereker/skkserv/protocol"
)

func TestDispatcher_Dispatch(t *testing.T) {
	d := NewDispatcher(func(input string) []string {
		if input == "a" {
			return []string{"x", "y"}
		}
		return []string{}
	})

	tests := []struct {
		name string
		req  protocol.Request
		want protocol.Response
	}{
		{"convert", protocol.Request{Command: protocol.Convert, Payload: "a"}, protocol.Candidates{"x", "y"}},
		{"complete", protocol.Request{Command: protocol.Complete, Payload: "a"}, protocol.Candidates{"x", "y"}},
		{"no candidates", protocol.Request{Command: protocol.Convert, Payload: "b"}, protocol.Candidates{}},
		{"version", protocol.Request{Command: protocol.GetVersion}, protocol.Version{Name: Name, Version: Version}},
		{"hostinfo", protocol.Request{Command: protocol.GetHostInfo}, protocol.HostInfo{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Dispatch(tt.req)
			if err != nil {
				t.Fatalf("Dispatch failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dispatch = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDispatcher_Close(t *testing.T) {
	d := NewDispatcher(func(string) []string { return nil })

	if _, err := d.Dispatch(protocol.Request{Command: protocol.CloseConnection}); !errors.Is(err, ErrCloseRequested) {
		t.Errorf("expected ErrCloseRequested, got %v", err)
	}
	if _, err := d.Dispatch(protocol.Request{Command: '7'}); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestNewSessions_MissingHandler(t *testing.T) {
	logger := &mockLogger{}
	sessions := NewSessions(LoggerOption(logger))

	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	sessions.Handle(context.Background(), serverConn)

	if !logger.has("failed to create session") {
		t.Error("expected session creation failure to be logged")
	}
	if _, err := serverConn.Write([]byte("x")); err == nil {
		t.Error("expected connection to be closed")
	}
}

// startServer runs a full server backed by a converter pinned to 2022-02-23.
func startServer(t *testing.T) net.Addr {
	t.Helper()

	conv := converter.New(converter.WithClock(func() time.Time {
		return time.Date(2022, 2, 23, 4, 5, 6, 0, time.FixedZone("JST", 9*60*60))
	}))
	t.Cleanup(conv.Close)

	server := newTestServer(t)
	sessions := NewSessions(
		OnRequestOption(NewDispatcher(conv.Lookup).Dispatch),
		IdleTimeoutOption(5*time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, sessions)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return server.Addr()
}

func TestEndToEnd_VersionThenClose(t *testing.T) {
	addr := startServer(t)

	client, err := net.DialTCP("tcp", nil, addr.(*net.TCPAddr))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(client)

	if _, err := client.Write([]byte("2")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	want := Name + "/" + Version + " "
	if got := readReply(t, r, len(want)); got != want {
		t.Errorf("version reply = %q, want %q", got, want)
	}

	if _, err := client.Write([]byte("0")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read after close failed: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("unexpected bytes after close: %q", rest)
	}
}

func TestEndToEnd_Conversion(t *testing.T) {
	addr := startServer(t)

	client, err := net.DialTCP("tcp", nil, addr.(*net.TCPAddr))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()
	client.SetDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(client)

	if _, err := client.Write([]byte("1きょう ")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if want := "1/(concat \"2022\\05702\\05723\")/2022-02-23/\n"; line != want {
		t.Errorf("reply = %q, want %q", line, want)
	}

	if _, err := client.Write([]byte("4unknown ")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if line, _ = r.ReadString('\n'); line != "4\n" {
		t.Errorf("reply = %q, want %q", line, "4\n")
	}

	if _, err := client.Write([]byte("3")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := readReply(t, r, len("dummy ")); got != "dummy " {
		t.Errorf("hostinfo reply = %q", got)
	}
}
