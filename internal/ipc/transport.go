package ipc

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// loggingTransport logs every API round trip. The query string carries the
// API key and is never logged.
type loggingTransport struct {
	next http.RoundTripper
}

func newTransport() http.RoundTripper {
	return &loggingTransport{next: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	resp, err := t.next.RoundTrip(r)

	ev := log.Debug().
		Str("method", r.Method).
		Str("host", r.URL.Host).
		Str("path", r.URL.Path).
		Str("country", r.URL.Query().Get("country")).
		Str("year", r.URL.Query().Get("year")).
		Dur("duration", time.Since(start))
	if err != nil {
		ev.Str("error", redact(err).Error()).Msg("API request failed")
		return nil, err
	}

	ev.Int("status", resp.StatusCode).Msg("API request processed")
	return resp, nil
}
