package proxy

import (
	"errors"
	"io"
	"net"
	"net/http"
)

// oneConnListener adapts a single already-accepted net.Conn to the
// net.Listener interface so http.Server.Serve can drive it: the standard
// trick for handing a pre-processed (TLS-terminated, protocol-sniffed)
// connection into net/http without re-implementing HTTP/1.1 framing.
type oneConnListener struct {
	conn net.Conn
	done chan struct{}
	addr net.Addr
}

func newOneConnListener(conn net.Conn) *oneConnListener {
	return &oneConnListener{conn: conn, done: make(chan struct{}), addr: conn.LocalAddr()}
}

func (l *oneConnListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, io.EOF
	default:
	}
	close(l.done)
	return l.conn, nil
}

func (l *oneConnListener) Close() error { return nil }

func (l *oneConnListener) Addr() net.Addr { return l.addr }

// ServeOneConn hands conn to srv. srv.Serve returns as soon as its second
// Accept reports io.EOF, right after the one connection has been accepted;
// the connection itself keeps being served on srv's own goroutine after
// ServeOneConn returns.
func ServeOneConn(srv *http.Server, conn net.Conn) {
	_ = srv.Serve(newOneConnListener(conn))
}

// copyAndSignal copies src to dst until either side closes, then signals
// done; used by the non-HTTP raw-forwarding path on both proxy sides to
// pump both directions of a forwarded connection concurrently.
func copyAndSignal(dst io.Writer, src io.Reader, done chan<- struct{}) {
	_, _ = io.Copy(dst, src)
	done <- struct{}{}
}

// WriteResponse copies resp onto w, the inverse of building an
// *http.Response from an upstream call: status line, headers, and body.
func WriteResponse(w http.ResponseWriter, resp *http.Response) error {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	_, err := io.Copy(w, resp.Body)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}
