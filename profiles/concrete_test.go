package profiles

import (
	"context"
	"testing"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

func echoMaker() svc.Maker[string, string, string] {
	return svc.MakerFunc[string, string, string](func(ctx context.Context, key string) (svc.Service[string, string], error) {
		addr := key
		return svc.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
			return addr, nil
		}), nil
	})
}

func TestConcrete_ForwardsToTargetByDefault(t *testing.T) {
	c, err := NewConcrete[string, string](context.Background(), echoMaker(), "primary", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Ready(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := c.Call(context.Background(), "req")
	if err != nil || resp != "primary" {
		t.Fatalf("expected primary, got %q err=%v", resp, err)
	}
}

func TestConcrete_SingleOverrideForwardsThere(t *testing.T) {
	c, err := NewConcrete[string, string](context.Background(), echoMaker(), "primary", 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ApplyOverrides(context.Background(), []collaborators.DestinationOverride{{Name: "other", Weight: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Ready(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, _ := c.Call(context.Background(), "req")
	if resp != "other" {
		t.Fatalf("expected other, got %q", resp)
	}
}

func TestConcrete_SplitOnlyEverReturnsKnownAddrs(t *testing.T) {
	c, err := NewConcrete[string, string](context.Background(), echoMaker(), "primary", 1)
	if err != nil {
		t.Fatal(err)
	}
	overrides := []collaborators.DestinationOverride{
		{Name: "a", Weight: 9},
		{Name: "b", Weight: 1},
	}
	if err := c.ApplyOverrides(context.Background(), overrides); err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		if err := c.Ready(context.Background()); err != nil {
			t.Fatal(err)
		}
		resp, err := c.Call(context.Background(), "req")
		if err != nil {
			t.Fatal(err)
		}
		if resp != "a" && resp != "b" {
			t.Fatalf("unexpected destination %q", resp)
		}
		seen[resp] = true
	}
	if !seen["a"] {
		t.Fatal("expected the heavily-weighted destination to be sampled at least once in 50 tries")
	}
}

// TestConcrete_ZeroWeightIsNeverSelected is the property test for
// invariant 10: a destination with weight 0 in a split never receives a
// request, however many attempts are sampled.
func TestConcrete_ZeroWeightIsNeverSelected(t *testing.T) {
	c, err := NewConcrete[string, string](context.Background(), echoMaker(), "primary", 42)
	if err != nil {
		t.Fatal(err)
	}
	overrides := []collaborators.DestinationOverride{
		{Name: "a", Weight: 1},
		{Name: "b", Weight: 0},
	}
	if err := c.ApplyOverrides(context.Background(), overrides); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4000; i++ {
		if err := c.Ready(context.Background()); err != nil {
			t.Fatal(err)
		}
		resp, err := c.Call(context.Background(), "req")
		if err != nil {
			t.Fatal(err)
		}
		if resp == "b" {
			t.Fatalf("zero-weight destination b was selected on attempt %d", i)
		}
	}
}
