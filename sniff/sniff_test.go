package sniff

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/meshcore/sidecar/collaborators"
)

func pipeWith(t *testing.T, data string) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		_, _ = client.Write([]byte(data))
	}()
	t.Cleanup(func() { client.Close(); server.Close() })
	return server
}

func TestDetect_RecognizesHTTP1RequestLine(t *testing.T) {
	conn := pipeWith(t, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	d := &Detector{Deadline: time.Second}
	proto, wrapped, err := d.Detect(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}
	if proto != collaborators.ProtocolHTTP1 {
		t.Fatalf("expected HTTP1, got %v", proto)
	}
	buf := make([]byte, 5)
	n, _ := io.ReadFull(wrapped, buf)
	if n != 5 || string(buf) != "GET /" {
		t.Fatalf("expected the peeked bytes to replay, got %q", buf[:n])
	}
}

func TestDetect_RecognizesHTTP2Preface(t *testing.T) {
	conn := pipeWith(t, http2Preface)
	d := &Detector{Deadline: time.Second}
	proto, _, err := d.Detect(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}
	if proto != collaborators.ProtocolHTTP2 {
		t.Fatalf("expected HTTP2, got %v", proto)
	}
}

func TestDetect_FallsBackToNotHTTP(t *testing.T) {
	conn := pipeWith(t, "\x00\x01\x02garbage")
	d := &Detector{Deadline: time.Second}
	proto, _, err := d.Detect(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}
	if proto != collaborators.ProtocolNotHTTP {
		t.Fatalf("expected NotHTTP, got %v", proto)
	}
}
