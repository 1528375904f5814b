package price

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var fallback = decimal.NewFromInt(150)

func newOracle(endpoint, key string, timeout time.Duration) *Oracle {
	return NewOracle(Options{
		Endpoint: endpoint,
		ApiKey:   key,
		Timeout:  timeout,
		Fallback: fallback,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSolPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SolMint, r.URL.Query().Get("address"))
		if r.Header.Get("X-API-KEY") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"success":true,"data":{"value":172.35,"updateUnixTime":1700000000}}`))
	}))
	defer srv.Close()

	t.Run("oracle price", func(t *testing.T) {
		p, source := newOracle(srv.URL, "key", time.Second).SolPrice(context.Background())
		assert.True(t, p.Equal(decimal.RequireFromString("172.35")))
		assert.Equal(t, SourceOracle, source)
	})

	t.Run("rejected key falls back", func(t *testing.T) {
		p, source := newOracle(srv.URL, "wrong", time.Second).SolPrice(context.Background())
		assert.True(t, p.Equal(fallback))
		assert.Equal(t, SourceFallback, source)
	})

	t.Run("missing key skips the oracle", func(t *testing.T) {
		p, source := newOracle(srv.URL, "", time.Second).SolPrice(context.Background())
		assert.True(t, p.Equal(fallback))
		assert.Equal(t, SourceFallback, source)
	})
}

func TestSolPriceAcceptsPriceField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"price":99.5}}`))
	}))
	defer srv.Close()

	p, source := newOracle(srv.URL, "key", time.Second).SolPrice(context.Background())
	assert.True(t, p.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, SourceOracle, source)
}

func TestSolPriceTimeoutFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	p, source := newOracle(srv.URL, "key", 20*time.Millisecond).SolPrice(context.Background())
	assert.True(t, p.Equal(fallback))
	assert.Equal(t, SourceFallback, source)
}
