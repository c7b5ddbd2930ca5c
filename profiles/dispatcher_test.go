package profiles

import (
	"context"
	"testing"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/svc"
)

type staticProfileClient struct {
	ch chan collaborators.Routes
}

func (c *staticProfileClient) GetRoutes(ctx context.Context, destination string) (<-chan collaborators.Routes, error) {
	return c.ch, nil
}

func extractGet(req string) (string, string, map[string][]string) {
	return "GET", req, nil
}

func TestDispatcher_SelectsRouteAndForwards(t *testing.T) {
	ch := make(chan collaborators.Routes, 1)
	client := &staticProfileClient{ch: ch}
	fooRoute := collaborators.Route{Name: "foo"}
	ch <- collaborators.Routes{
		Rules: []collaborators.RouteRule{
			{Match: func(method, path string, headers map[string][]string) bool { return path == "/foo" }, Route: fooRoute},
		},
		Default: collaborators.Route{Name: "default"},
	}

	var builtFor []string
	build := func(route collaborators.Route, concrete svc.Service[string, string]) svc.Service[string, string] {
		builtFor = append(builtFor, route.Name)
		return concrete
	}

	d, err := New[string, string](context.Background(), client, "dst", echoMaker(), extractGet, build, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Ready(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := d.Call(context.Background(), "/foo")
	if err != nil || resp != "dst" {
		t.Fatalf("expected dst, got %q err=%v", resp, err)
	}
	resp, err = d.Call(context.Background(), "/bar")
	if err != nil || resp != "dst" {
		t.Fatalf("expected dst for default route, got %q err=%v", resp, err)
	}
	if len(builtFor) != 2 || builtFor[0] != "foo" || builtFor[1] != "default" {
		t.Fatalf("expected one build per distinct route name, got %v", builtFor)
	}

	// Calling the same routes again must reuse the cached built services.
	if _, err := d.Call(context.Background(), "/foo"); err != nil {
		t.Fatal(err)
	}
	if len(builtFor) != 2 {
		t.Fatalf("expected route build to be cached, got %d builds", len(builtFor))
	}
}

func TestDispatcher_AppliesOverridesFromStream(t *testing.T) {
	ch := make(chan collaborators.Routes, 1)
	client := &staticProfileClient{ch: ch}
	ch <- collaborators.Routes{
		Default:              collaborators.Route{Name: "default"},
		DestinationOverrides: []collaborators.DestinationOverride{{Name: "override", Weight: 1}},
	}

	d, err := New[string, string](context.Background(), client, "dst", echoMaker(), extractGet, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Ready(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, err := d.Call(context.Background(), "/any")
	if err != nil || resp != "override" {
		t.Fatalf("expected override, got %q err=%v", resp, err)
	}
}
