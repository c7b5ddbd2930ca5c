package svc

import (
	"context"
	"testing"
)

// countingLayer appends its tag to order on every Call it observes and
// forwards the request unchanged, letting us assert the ordering of
// composed layers.
func countingLayer(tag string, order *[]string) Layer[string, string] {
	return func(inner Service[string, string]) Service[string, string] {
		return ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
			*order = append(*order, tag)
			return inner.Call(ctx, req)
		})
	}
}

func base() Service[string, string] {
	return ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
		return req + "|base", nil
	})
}

// TestPushOrderingEquivalence is the property test for invariant 8:
// building a stack via push(a).push(b) must be observationally equivalent
// to composing the two layers directly, for the same sequence of ready/call
// observations.
func TestPushOrderingEquivalence(t *testing.T) {
	var viaPush []string
	stack := New(base()).
		Push(countingLayer("a", &viaPush)).
		Push(countingLayer("b", &viaPush))

	var viaCompose []string
	composed := countingLayer("b", &viaCompose)(countingLayer("a", &viaCompose)(base()))

	ctx := context.Background()
	got1, err := Oneshot(ctx, stack.Service(), "req")
	if err != nil {
		t.Fatalf("push stack: %v", err)
	}
	got2, err := Oneshot(ctx, composed, "req")
	if err != nil {
		t.Fatalf("composed stack: %v", err)
	}

	if got1 != got2 {
		t.Fatalf("observationally different results: %q vs %q", got1, got2)
	}
	if len(viaPush) != len(viaCompose) {
		t.Fatalf("different call orderings: %v vs %v", viaPush, viaCompose)
	}
	for i := range viaPush {
		if viaPush[i] != viaCompose[i] {
			t.Fatalf("ordering mismatch at %d: %v vs %v", i, viaPush, viaCompose)
		}
	}
	// Outer layer (b, pushed last) must observe the request before inner (a).
	if viaPush[0] != "b" || viaPush[1] != "a" {
		t.Fatalf("expected outer-over-inner order [b a], got %v", viaPush)
	}
}

func TestOneshotPropagatesReadyError(t *testing.T) {
	notReady := errNotReady{}
	s := readyErrService{err: notReady}
	_, err := Oneshot(context.Background(), s, "x")
	if err != notReady {
		t.Fatalf("expected ready error to propagate, got %v", err)
	}
}

type errNotReady struct{}

func (errNotReady) Error() string { return "not ready" }

type readyErrService struct{ err error }

func (r readyErrService) Ready(context.Context) error { return r.err }
func (r readyErrService) Call(context.Context, string) (string, error) {
	panic("Call must not be reached when Ready fails")
}

func TestPerMakeAppliesLayerToProducedServices(t *testing.T) {
	var order []string
	inner := MakerFunc[string, string, string](func(ctx context.Context, key string) (Service[string, string], error) {
		return base(), nil
	})
	stack := NewMaker[string, string, string](inner).Push(PerMake[string, string, string](countingLayer("wrap", &order)))

	svc, err := stack.Maker().Make(context.Background(), "key")
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	if _, err := Oneshot(context.Background(), svc, "req"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(order) != 1 || order[0] != "wrap" {
		t.Fatalf("expected per-make layer to wrap produced service, got %v", order)
	}
}
