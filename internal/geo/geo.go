// Package geo resolves a client IP to a two-letter country code. Lookups are
// advisory and fail open: every failure yields a Result, never an error.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	SourceFallback = "fallback"
	SourceIPAPI    = "ipapi"
	SourceCache    = "cache"

	ReasonPrivateOrMissing = "private-or-missing-ip"
	ReasonLookupSuccess    = "lookup-success"
	ReasonLookupError      = "lookup-error"
)

type Result struct {
	CountryCode string `json:"countryCode,omitempty"`
	Source      string `json:"source"`
	Reason      string `json:"reason"`
	IsFallback  bool   `json:"isFallback"`
}

// Cache stores resolved country codes between lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
}

type Locator struct {
	baseURL        string
	timeout        time.Duration
	defaultCountry string
	cache          Cache
	cacheTTL       time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// DefaultCountry is returned for private, loopback and missing addresses
	DefaultCountry string
	Cache          Cache
	CacheTTL       time.Duration
}

func NewLocator(opts Options, logger *slog.Logger) *Locator {
	return &Locator{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		timeout:        opts.Timeout,
		defaultCountry: opts.DefaultCountry,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		httpClient:     &http.Client{},
		logger:         logger,
	}
}

func (l *Locator) Lookup(ctx context.Context, ip string) Result {
	if IsPrivate(ip) {
		return Result{
			CountryCode: l.defaultCountry,
			Source:      SourceFallback,
			Reason:      ReasonPrivateOrMissing,
			IsFallback:  true,
		}
	}

	key := "geo:" + ip
	if l.cache != nil {
		if code, found, err := l.cache.Get(ctx, key); err == nil && found {
			return Result{CountryCode: code, Source: SourceCache, Reason: ReasonLookupSuccess}
		}
	}

	code, err := l.fetch(ctx, ip)
	if err != nil {
		l.logger.Warn("geo lookup failed", "ip", ip, "error", err)
		return Result{CountryCode: l.defaultCountry, Source: SourceIPAPI, Reason: ReasonLookupError, IsFallback: true}
	}

	if l.cache != nil && code != "" {
		if err := l.cache.Set(ctx, key, code, l.cacheTTL); err != nil {
			l.logger.Warn("geo cache write failed", "error", err)
		}
	}

	return Result{CountryCode: code, Source: SourceIPAPI, Reason: ReasonLookupSuccess}
}

func (l *Locator) fetch(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/json/", l.baseURL, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	res, err := l.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup failed with status %d", res.StatusCode)
	}

	var body struct {
		CountryCode string `json:"country_code"`
		Error       bool   `json:"error"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Error {
		return "", fmt.Errorf("geo lookup refused: %s", body.Reason)
	}

	return strings.ToUpper(body.CountryCode), nil
}

// IsPrivate reports whether ip is missing, loopback or in a private range.
func IsPrivate(ip string) bool {
	if ip == "" || ip == "127.0.0.1" || ip == "::1" {
		return true
	}
	if strings.HasPrefix(ip, "10.") || strings.HasPrefix(ip, "192.168.") {
		return true
	}

	octets := strings.Split(ip, ".")
	if len(octets) >= 2 && octets[0] == "172" {
		second, err := strconv.Atoi(octets[1])
		if err == nil && second >= 16 && second <= 31 {
			return true
		}
	}

	lower := strings.ToLower(ip)
	return strings.HasPrefix(lower, "fc") || strings.HasPrefix(lower, "fd")
}
