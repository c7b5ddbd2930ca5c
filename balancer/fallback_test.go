package balancer

import (
	"context"
	"errors"
	"testing"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

func constMaker(resp string, err error) svc.Maker[string, string, string] {
	return svc.MakerFunc[string, string, string](func(ctx context.Context, key string) (svc.Service[string, string], error) {
		if err != nil {
			return nil, err
		}
		return svc.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
			return resp, nil
		}), nil
	})
}

func TestFallback_UsesPrimaryWhenItSucceeds(t *testing.T) {
	f := NewFallback[string, string, string](constMaker("primary", nil), constMaker("fallback", nil), nil)
	s, err := f.Make(context.Background(), "key")
	if err != nil {
		t.Fatal(err)
	}
	resp, _ := s.Call(context.Background(), "req")
	if resp != "primary" {
		t.Fatalf("expected primary, got %q", resp)
	}
}

func TestFallback_FallsBackOnDiscoveryRejected(t *testing.T) {
	f := NewFallback[string, string, string](
		constMaker("", collaborators.New(collaborators.KindDiscoveryRejected, nil)),
		constMaker("fallback", nil),
		nil,
	)
	s, err := f.Make(context.Background(), "key")
	if err != nil {
		t.Fatal(err)
	}
	resp, _ := s.Call(context.Background(), "req")
	if resp != "fallback" {
		t.Fatalf("expected fallback, got %q", resp)
	}
}

func TestFallback_SurfacesOtherErrors(t *testing.T) {
	want := errors.New("boom")
	f := NewFallback[string, string, string](constMaker("", want), constMaker("fallback", nil), nil)
	_, err := f.Make(context.Background(), "key")
	if !errors.Is(err, want) {
		t.Fatalf("expected the primary's non-discovery error to surface, got %v", err)
	}
}
