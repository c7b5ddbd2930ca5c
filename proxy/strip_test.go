package proxy

import (
	"net/http/httptest"
	"testing"
)

func TestStripMeshHeaders_RemovesAllMeshHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	for _, h := range meshInternalHeaders {
		req.Header.Set(h, "x")
	}
	req.Header.Set("X-App-Header", "keep-me")

	StripMeshHeaders(req)

	for _, h := range meshInternalHeaders {
		if req.Header.Get(h) != "" {
			t.Fatalf("expected %s to be stripped", h)
		}
	}
	if req.Header.Get("X-App-Header") != "keep-me" {
		t.Fatal("expected non-mesh headers to survive stripping")
	}
}
