// synth.go is the unique place a raw boundary error becomes an HTTP
// response : every other layer either recovers locally or
// propagates the error unchanged.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

// Synthesize maps a boundary error to the HTTP response // prescribes. BudgetExhausted is handled by the caller: the retry layer
// already surfaces the last real upstream response on budget exhaustion,
// so Synthesize is never reached for that kind in normal operation; it is
// still mapped here (as a passthrough-shaped 200 is wrong, so it falls
// back to 502) in case a caller surfaces it as a bare error some other way.
func Synthesize(err error) *http.Response {
	status, body := statusFor(collaborators.KindOf(err))
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func statusFor(kind collaborators.Kind) (int, []byte) {
	switch kind {
	case collaborators.KindOverloaded:
		return http.StatusServiceUnavailable, nil
	case collaborators.KindTimeout:
		return http.StatusGatewayTimeout, nil
	case collaborators.KindConnectFailed, collaborators.KindNotRecognized, collaborators.KindNoCapacity:
		return http.StatusBadGateway, nil
	default:
		return http.StatusBadGateway, nil
	}
}

// Dispatch issues a single oneshot request against s and guarantees a
// non-nil response: a Ready failure (e.g. admission's LoadShed surfacing
// Overloaded) and a Call failure are both funneled through Synthesize.
// Go's separate Ready/Call signals mean the unique synthesis point named
// has to sit above both, rather than wrapping Call alone as
// an inner svc.Layer would; this is the one place either can produce a
// response.
func Dispatch(ctx context.Context, s svc.Service[*http.Request, *http.Response], req *http.Request) *http.Response {
	if err := s.Ready(ctx); err != nil {
		return Synthesize(err)
	}
	resp, err := s.Call(ctx, req)
	if err != nil {
		if resp != nil {
			return resp
		}
		return Synthesize(err)
	}
	return resp
}
