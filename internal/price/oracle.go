package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	// SolMint is the wrapped SOL mint the oracle is queried with
	SolMint = "So11111111111111111111111111111111111111112"

	DefaultEndpoint = "https://public-api.birdeye.so/public/price"

	SourceOracle   = "birdeye"
	SourceFallback = "fallback"
)

// Oracle returns a best-effort USD price for SOL. It never fails: a missing
// key, a timeout or a malformed answer all yield the configured fallback.
type Oracle struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	fallback   decimal.Decimal
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Options struct {
	Endpoint string
	ApiKey   string
	Timeout  time.Duration
	Fallback decimal.Decimal
	Metrics  *metrics.Metrics
}

func NewOracle(opts Options, logger *slog.Logger) *Oracle {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Oracle{
		endpoint:   endpoint,
		apiKey:     opts.ApiKey,
		timeout:    opts.Timeout,
		fallback:   opts.Fallback,
		httpClient: &http.Client{},
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// SolPrice returns the USD price of one SOL and where it came from.
func (o *Oracle) SolPrice(ctx context.Context) (decimal.Decimal, string) {
	if o.apiKey == "" {
		return o.fallback, SourceFallback
	}

	start := time.Now()
	p, err := o.fetch(ctx)
	if o.metrics != nil {
		o.metrics.UpstreamDuration.WithLabelValues(SourceOracle).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if o.metrics != nil {
			o.metrics.UpstreamErrors.WithLabelValues(SourceOracle).Inc()
		}
		o.logger.Warn("failed to fetch SOL price, using fallback", "error", err, "fallback", o.fallback.String())
		return o.fallback, SourceFallback
	}

	return p, SourceOracle
}

func (o *Oracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	endpoint := o.endpoint + "?address=" + url.QueryEscape(SolMint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("X-API-KEY", o.apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := o.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price oracle responded with %d", res.StatusCode)
	}

	var payload struct {
		Data struct {
			Value decimal.NullDecimal `json:"value"`
			Price decimal.NullDecimal `json:"price"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}

	p := payload.Data.Value
	if !p.Valid {
		p = payload.Data.Price
	}
	if !p.Valid || !p.Decimal.IsPositive() {
		return decimal.Zero, fmt.Errorf("price oracle returned no usable price")
	}

	return p.Decimal, nil
}
