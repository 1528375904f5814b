package geo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"", true},
		{"127.0.0.1", true},
		{"::1", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"172.15.0.1", false},
		{"fd12:3456::1", true},
		{"FC00::1", true},
		{"8.8.8.8", false},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, IsPrivate(tt.ip))
		})
	}
}

func TestLookup(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/8.8.8.8/json/":
			w.Write([]byte(`{"ip":"8.8.8.8","country_code":"us"}`))
		case "/5.29.0.1/json/":
			w.Write([]byte(`{"ip":"5.29.0.1","country_code":"IL"}`))
		case "/1.1.1.1/json/":
			w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	cache := &mapCache{values: map[string]string{}}
	locator := NewLocator(Options{
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		DefaultCountry: "IL",
		Cache:          cache,
		CacheTTL:       time.Hour,
	}, discardLogger())

	t.Run("private address falls back to default country", func(t *testing.T) {
		res := locator.Lookup(context.Background(), "192.168.1.4")
		assert.Equal(t, Result{CountryCode: "IL", Source: SourceFallback, Reason: ReasonPrivateOrMissing, IsFallback: true}, res)
	})

	t.Run("successful lookup is upper-cased and cached", func(t *testing.T) {
		res := locator.Lookup(context.Background(), "8.8.8.8")
		assert.Equal(t, "US", res.CountryCode)
		assert.Equal(t, SourceIPAPI, res.Source)
		assert.False(t, res.IsFallback)

		before := calls.Load()
		res = locator.Lookup(context.Background(), "8.8.8.8")
		assert.Equal(t, "US", res.CountryCode)
		assert.Equal(t, SourceCache, res.Source)
		assert.Equal(t, before, calls.Load())
	})

	t.Run("provider error falls back to default country", func(t *testing.T) {
		res := locator.Lookup(context.Background(), "1.1.1.1")
		assert.Equal(t, "IL", res.CountryCode)
		assert.Equal(t, ReasonLookupError, res.Reason)
		assert.True(t, res.IsFallback)
	})

	t.Run("http error falls back to default country", func(t *testing.T) {
		res := locator.Lookup(context.Background(), "9.9.9.9")
		assert.Equal(t, ReasonLookupError, res.Reason)
		assert.Equal(t, "IL", res.CountryCode)
		assert.True(t, res.IsFallback)
	})
}

func TestLookupTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	locator := NewLocator(Options{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, DefaultCountry: "IL"}, discardLogger())

	res := locator.Lookup(context.Background(), "8.8.4.4")
	assert.Equal(t, ReasonLookupError, res.Reason)
	assert.Equal(t, "IL", res.CountryCode)
	assert.True(t, res.IsFallback)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"first forwarded entry", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.9"},
		{"netlify connection ip", map[string]string{"X-Nf-Client-Connection-Ip": "198.51.100.7"}, "10.0.0.2:1234", "198.51.100.7"},
		{"client-ip header", map[string]string{"Client-Ip": "198.51.100.8"}, "10.0.0.2:1234", "198.51.100.8"},
		{"remote address", nil, "198.51.100.9:4321", "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			require.Equal(t, tt.want, ClientIP(r))
		})
	}
}
