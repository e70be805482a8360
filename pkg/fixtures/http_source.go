package fixtures

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/phenomenon0/puntaiq/core"
)

const (
	defaultRateLimit = 2.0 // requests per second
	defaultBurst     = 2
)

// HTTPSource fetches matches from a JSON endpoint:
//
//	GET {baseURL}/matches?sport=football&days_ahead=3 -> []Match
type HTTPSource struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(s *HTTPSource) {
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAPIKey sends the key in the X-API-Key header.
func WithAPIKey(key string) HTTPOption {
	return func(s *HTTPSource) {
		if key != "" {
			s.client.SetHeader("X-API-Key", key)
		}
	}
}

// NewHTTPSource creates an HTTP-backed source.
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetHeader("Accept", "application/json"),
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, sport core.Sport, daysAhead int) ([]Match, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	var matches []Match
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sport":      string(sport),
			"days_ahead": strconv.Itoa(daysAhead),
		}).
		SetResult(&matches).
		Get("/matches")
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("api error %d: %s", resp.StatusCode(), resp.String())
	}

	// Endpoints may return other sports; keep only the requested one.
	out := matches[:0]
	for _, m := range matches {
		if m.Sport == "" {
			m.Sport = sport
		}
		if m.Sport == sport {
			out = append(out, m)
		}
	}
	return out, nil
}
