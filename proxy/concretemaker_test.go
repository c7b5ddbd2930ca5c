package proxy

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

type rejectingDiscoveryClient struct{}

func (rejectingDiscoveryClient) Resolve(ctx context.Context, concrete string) (<-chan collaborators.DiscoveryEvent, error) {
	return nil, collaborators.New(collaborators.KindDiscoveryRejected, errors.New("no service profile"))
}

type fixedEndpointMaker struct {
	built map[string]bool
}

func (m *fixedEndpointMaker) Make(ctx context.Context, addr string) (svc.Service[*http.Request, *http.Response], error) {
	m.built[addr] = true
	return &fixedResponseService{resp: &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}}, nil
}

func TestNewConcreteMaker_FallsBackToDirectForwardOnDiscoveryRejection(t *testing.T) {
	endpointMaker := &fixedEndpointMaker{built: make(map[string]bool)}
	canon := NewCanonicalizer(nil)
	maker := NewConcreteMaker(rejectingDiscoveryClient{}, endpointMaker, canon, 16)

	s, err := maker.Make(context.Background(), "billing:8080")
	if err != nil {
		t.Fatalf("expected fallback to succeed, got error: %v", err)
	}
	if !endpointMaker.built["billing:8080"] {
		t.Fatal("expected the fallback to build a direct endpoint service for the concrete name")
	}
	resp, err := s.Call(context.Background(), &http.Request{})
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the fallback service to be callable, got resp=%v err=%v", resp, err)
	}
}
