package proxy

import (
	"net/http"
	"strconv"

	"github.com/meshcore/sidecar/collaborators"
	"github.com/meshcore/sidecar/profiles"
	"github.com/meshcore/sidecar/svc"
	"github.com/meshcore/sidecar/svc/retry"
	"github.com/meshcore/sidecar/svc/timeout"
)

// ExtractVerdict implements classify.Extractor[*http.Response]: the HTTP
// status plus an optional gRPC status code read from the trailer (and,
// failing that, the header, for servers that set it early), matching
// "status code, optional gRPC status trailer".
func ExtractVerdict(resp *http.Response, _ error) (status int, grpcCode *int) {
	if resp == nil {
		return 0, nil
	}
	status = resp.StatusCode
	if v := resp.Trailer.Get("Grpc-Status"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			grpcCode = &n
		}
	}
	if grpcCode == nil {
		if v := resp.Header.Get("Grpc-Status"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				grpcCode = &n
			}
		}
	}
	return status, grpcCode
}

// BuildRouteService returns the profiles.RouteBuilder shared by inbound and
// outbound assembly: it wraps the concrete dispatch service with the
// route's timeout and retry policy, in that order (timeout bounds each
// individual attempt, including a retried one).
func BuildRouteService(onSkipped func(retry.SkipReason)) profiles.RouteBuilder[*http.Request, *http.Response] {
	return func(route collaborators.Route, concrete svc.Service[*http.Request, *http.Response]) svc.Service[*http.Request, *http.Response] {
		s := concrete
		if route.Timeout > 0 {
			s = timeout.New(s, route.Timeout)
		}
		if route.Retry != nil {
			s = retry.New(retry.Config[*http.Request, *http.Response]{
				Retry:     *route.Retry,
				Classify:  route.Classify,
				Extract:   ExtractVerdict,
				Clone:     CloneRequest,
				OnSkipped: onSkipped,
			}, s)
		}
		return s
	}
}
