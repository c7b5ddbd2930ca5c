// Package sniff implements collaborators.ProtocolDetector: peeking a
// bounded prefix of a freshly-accepted connection to decide whether to
// parse it as HTTP/1.x, HTTP/2, or forward it untouched as opaque TCP.
// This is the one piece of byte-level HTTP parsing the core spec
// otherwise excludes, included because C9 assembly needs some concrete
// collaborator behind the interface; its output is a three-way enum, never
// a parsed request.
package sniff

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/meshcore/sidecar/collaborators"
)

// MaxBytes bounds how much of the connection Detect peeks at.
const MaxBytes = 512

// DefaultDeadline bounds how long Detect waits for enough bytes to decide.
const DefaultDeadline = 500 * time.Millisecond

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

var httpMethods = []string{
	"GET ", "HEAD ", "POST ", "PUT ", "DELETE ", "CONNECT ", "OPTIONS ", "TRACE ", "PATCH ",
}

// Detector implements collaborators.ProtocolDetector.
type Detector struct {
	Deadline time.Duration
}

// NewDetector constructs a Detector with DefaultDeadline.
func NewDetector() *Detector { return &Detector{Deadline: DefaultDeadline} }

func (d *Detector) Detect(ctx context.Context, conn net.Conn) (collaborators.Protocol, net.Conn, error) {
	deadline := d.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < deadline {
			deadline = until
		}
	}
	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return collaborators.ProtocolNotHTTP, conn, err
	}
	defer conn.SetReadDeadline(time.Time{})

	br := bufio.NewReaderSize(conn, MaxBytes)
	peek, _ := br.Peek(len(http2Preface))
	if string(peek) == http2Preface {
		return collaborators.ProtocolHTTP2, &replayConn{Conn: conn, r: br}, nil
	}

	peek, _ = br.Peek(MaxBytes)
	line := string(peek)
	for _, m := range httpMethods {
		if strings.HasPrefix(line, m) {
			return collaborators.ProtocolHTTP1, &replayConn{Conn: conn, r: br}, nil
		}
	}
	return collaborators.ProtocolNotHTTP, &replayConn{Conn: conn, r: br}, nil
}

// replayConn lets the caller read the bytes Detect already peeked before
// falling through to the raw connection (collaborators.ProtocolDetector's
// "must replay any bytes it peeked" contract).
type replayConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *replayConn) Read(p []byte) (int, error) { return c.r.Read(p) }
