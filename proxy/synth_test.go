package proxy

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/meshcore/sidecar/collaborators"
)

func TestSynthesize_MapsKnownKindsToStatus(t *testing.T) {
	cases := []struct {
		kind collaborators.Kind
		want int
	}{
		{collaborators.KindOverloaded, http.StatusServiceUnavailable},
		{collaborators.KindTimeout, http.StatusGatewayTimeout},
		{collaborators.KindConnectFailed, http.StatusBadGateway},
		{collaborators.KindNotRecognized, http.StatusBadGateway},
		{collaborators.KindNoCapacity, http.StatusBadGateway},
	}
	for _, c := range cases {
		resp := Synthesize(collaborators.New(c.kind, errors.New("boom")))
		if resp.StatusCode != c.want {
			t.Errorf("kind %v: expected status %d, got %d", c.kind, c.want, resp.StatusCode)
		}
	}
}

type readyErrService struct{ err error }

func (s *readyErrService) Ready(context.Context) error { return s.err }
func (s *readyErrService) Call(context.Context, *http.Request) (*http.Response, error) {
	panic("Call must not be reached when Ready fails")
}

func TestDispatch_SynthesizesFromReadyFailure(t *testing.T) {
	req := &http.Request{}
	s := &readyErrService{err: collaborators.New(collaborators.KindOverloaded, nil)}
	resp := Dispatch(context.Background(), s, req)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from a Ready failure, got %d", resp.StatusCode)
	}
}

type callErrService struct {
	resp *http.Response
	err  error
}

func (s *callErrService) Ready(context.Context) error { return nil }
func (s *callErrService) Call(context.Context, *http.Request) (*http.Response, error) {
	return s.resp, s.err
}

func TestDispatch_SynthesizesFromCallFailureWithNoResponse(t *testing.T) {
	s := &callErrService{err: collaborators.New(collaborators.KindConnectFailed, errors.New("reset"))}
	resp := Dispatch(context.Background(), s, &http.Request{})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 from a Call failure with no response, got %d", resp.StatusCode)
	}
}

func TestDispatch_PrefersLastRealResponseOverSynthesis(t *testing.T) {
	last := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	s := &callErrService{resp: last, err: collaborators.New(collaborators.KindBudgetExhausted, nil)}
	resp := Dispatch(context.Background(), s, &http.Request{})
	if resp != last {
		t.Fatal("expected Dispatch to surface the last real upstream response on budget exhaustion")
	}
}

func TestDispatch_ReturnsUpstreamResponseOnSuccess(t *testing.T) {
	want := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	s := &callErrService{resp: want}
	resp := Dispatch(context.Background(), s, &http.Request{})
	if resp != want {
		t.Fatal("expected the upstream response to pass through unchanged")
	}
}
