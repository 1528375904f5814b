package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/helper"
	"github.com/stretchr/testify/require"
)

// valid base58 encoded 32-byte keys
const (
	userWallet  = "So11111111111111111111111111111111111111112"
	otherWallet = "Vote111111111111111111111111111111111111111"
)

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func newTestErrHandler() *errHandler.ErrorRepository {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var wg sync.WaitGroup
	help := helper.New("http://localhost", &wg, logger)
	return errHandler.New("", nil, logger, help)
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(t *testing.T, fn http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	rr := httptest.NewRecorder()
	fn(rr, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.Equal(t, rr.Code, env.Status)
	return rr, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestRetrieveUrlQueryValues(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		limit  int
		offset int
		status string
	}{
		{"defaults", "", 20, 0, ""},
		{"second page", "?limit=10&page=2", 10, 10, ""},
		{"limit is capped", "?limit=1000", maxPageSize, 0, ""},
		{"garbage ignored", "?limit=abc&page=-1", 20, 0, ""},
		{"status passed through", "?status=pending", 20, 0, "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/withdrawals"+tt.query, nil)
			values := retrieveUrlQueryValues(req)

			require.Equal(t, tt.limit, values.Limit)
			require.Equal(t, tt.offset, values.Offset)
			require.Equal(t, tt.status, values.Status)
		})
	}
}
