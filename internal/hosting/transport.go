package hosting

import (
	"net/http"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond keeps bulk saves under the secondary rate limits
// of both hosted services.
const DefaultRequestsPerSecond = 10

// BearerTransport adds an Authorization header to every request and waits on
// an optional limiter before sending it.
type BearerTransport struct {
	Token   string
	Header  string // defaults to "Authorization" with a "Bearer " prefix
	Limiter *rate.Limiter
	Base    http.RoundTripper
}

// NewLimiter returns a limiter for rps requests per second, using the
// default when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// RoundTrip implements http.RoundTripper.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	req2 := req.Clone(req.Context())
	if t.Header != "" {
		req2.Header.Set(t.Header, t.Token)
	} else {
		req2.Header.Set("Authorization", "Bearer "+t.Token)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}
