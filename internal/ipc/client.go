// Package ipc fetches classification areas from the IPC public API.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/woozymasta/ipcareas/internal/geo"
)

const (
	// DefaultBaseURL is the areas endpoint of the IPC API.
	DefaultBaseURL = "https://api.ipcinfo.org/areas"
	// UserAgent identifies requests made by this tool.
	UserAgent = "IPC-Areas-Downloader/1.0"
	// EnvKey holds the API key.
	EnvKey = "IPC_KEY"
)

var (
	// ErrNoKey is returned when no API key is configured.
	ErrNoKey = errors.New("IPC_KEY environment variable is required")
	// ErrNoData is returned for responses without features.
	ErrNoData = errors.New("no data available")
)

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// ResolveKey reads the API key through getenv.
func ResolveKey(getenv func(string) string) (string, error) {
	if key := getenv(EnvKey); key != "" {
		return key, nil
	}
	return "", ErrNoKey
}

// Client calls the areas endpoint.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Key     string
	// Timeout bounds each request; zero leaves it to the context.
	Timeout time.Duration
}

// NewClient returns a client for baseURL; an empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, key string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		HTTP:    &http.Client{Transport: newTransport()},
		BaseURL: baseURL,
		Key:     key,
		Timeout: timeout,
	}
}

// FetchAreas downloads the assessed areas of a country (ISO2 code) for a year.
// Responses that are not a feature collection with at least one feature yield ErrNoData.
func (c *Client) FetchAreas(ctx context.Context, iso2 string, year int) ([]geo.RawFeature, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("format", "geojson")
	q.Set("country", iso2)
	q.Set("year", strconv.Itoa(year))
	q.Set("type", "A")
	q.Set("key", c.Key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", redact(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	features, err := geo.DecodeRawFeatures(body)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(features) == 0 {
		return nil, ErrNoData
	}

	return features, nil
}

// redact strips the request URL, which carries the API key, from transport errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
