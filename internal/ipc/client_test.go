package ipc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey(t *testing.T) {
	key, err := ResolveKey(func(name string) string {
		if name == EnvKey {
			return "secret"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", key)

	_, err = ResolveKey(func(string) string { return "" })
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestFetchAreas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/areas", r.URL.Path)
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))

		q := r.URL.Query()
		assert.Equal(t, "geojson", q.Get("format"))
		assert.Equal(t, "KE", q.Get("country"))
		assert.Equal(t, "2025", q.Get("year"))
		assert.Equal(t, "A", q.Get("type"))
		assert.Equal(t, "secret", q.Get("key"))

		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"id":1,"title":"A"}},
			{"type":"Feature","geometry":null,"properties":{"id":2}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/areas", "secret", time.Second)
	features, err := c.FetchAreas(context.Background(), "KE", 2025)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "A", features[0].Properties.Title())
}

func TestFetchAreasFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, 500, se.Code)
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   "<html>",
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "invalid JSON")
			},
		},
		{
			name:   "empty collection",
			status: http.StatusOK,
			body:   `{"type":"FeatureCollection","features":[]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoData)
			},
		},
		{
			name:   "not a collection",
			status: http.StatusOK,
			body:   `{"message":"no analysis"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoData)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", time.Second).FetchAreas(context.Background(), "SO", 2024)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFetchAreasTimeoutHidesKey(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, "top-secret", 20*time.Millisecond).FetchAreas(context.Background(), "KE", 2025)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, err.Error(), "top-secret")
}
