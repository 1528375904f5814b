package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cradoe/gopass"
	"github.com/cradoe/leverpad/internal/config"
	"github.com/cradoe/leverpad/internal/context"
	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/cradoe/leverpad/internal/response"

	"github.com/pascaldekloe/jwt"
	"github.com/tomasen/realip"
)

type Middleware struct {
	errHandler        *errHandler.ErrorRepository
	logger            *slog.Logger
	metrics           *metrics.Metrics
	config            *config.Config
	adminPasswordHash string
}

// New hashes the configured admin password once so requests never compare
// against the plain value.
func New(errHandler *errHandler.ErrorRepository, logger *slog.Logger, metrics *metrics.Metrics, config *config.Config) (*Middleware, error) {
	mid := &Middleware{
		errHandler: errHandler,
		logger:     logger,
		metrics:    metrics,
		config:     config,
	}

	if config.AdminConfigured() {
		hash, err := gopass.Hash(config.Admin.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing admin password: %w", err)
		}
		mid.adminPasswordHash = hash
	}

	return mid, nil
}

func (mid *Middleware) RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err != nil {
				mid.errHandler.ServerError(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) LogAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		mw := response.NewMetricsResponseWriter(w)
		next.ServeHTTP(mw, r)

		var (
			ip     = realip.FromRequest(r)
			method = r.Method
			url    = r.URL.String()
			proto  = r.Proto
		)

		if mid.metrics != nil {
			mid.metrics.HTTPRequests.WithLabelValues(method, strconv.Itoa(mw.StatusCode)).Inc()
			mid.metrics.HTTPDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		}

		userAttrs := slog.Group("user", "ip", ip)
		requestAttrs := slog.Group("request", "method", method, "url", url, "proto", proto)
		responseAttrs := slog.Group("response", "status", mw.StatusCode, "size", mw.BytesCount)

		mid.logger.Info("access", userAttrs, requestAttrs, responseAttrs)
	})
}

// Authenticate identifies admin callers from either a Bearer token issued by
// the token endpoint or Basic credentials. Requests without an Authorization
// header pass through anonymously.
func (mid *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")

		authorizationHeader := r.Header.Get("Authorization")
		if authorizationHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, _, _ := strings.Cut(authorizationHeader, " ")

		switch scheme {
		case "Bearer":
			admin, ok := mid.adminFromToken(authorizationHeader)
			if !ok {
				mid.errHandler.InvalidAuthenticationToken(w, r)
				return
			}
			r = context.ContextSetAuthenticatedAdmin(r, admin)

		case "Basic":
			if !mid.config.AdminConfigured() {
				mid.errHandler.AdminNotConfigured(w, r)
				return
			}

			admin, ok, err := mid.adminFromBasic(r)
			if err != nil {
				mid.errHandler.ServerError(w, r, err)
				return
			}
			if !ok {
				mid.errHandler.BasicAuthenticationRequired(w, r)
				return
			}
			r = context.ContextSetAuthenticatedAdmin(r, admin)
		}

		next.ServeHTTP(w, r)
	})
}

func (mid *Middleware) adminFromToken(header string) (*context.Admin, bool) {
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))

	claims, err := jwt.HMACCheck([]byte(token), []byte(mid.config.Jwt.SecretKey))
	if err != nil {
		return nil, false
	}

	if !claims.Valid(time.Now()) {
		return nil, false
	}

	if claims.Issuer != mid.config.BaseURL {
		return nil, false
	}

	if !claims.AcceptAudience(mid.config.BaseURL) {
		return nil, false
	}

	if claims.Subject == "" || claims.Subject != mid.config.Admin.Username {
		return nil, false
	}

	return &context.Admin{Username: claims.Subject, Method: "token"}, true
}

func (mid *Middleware) adminFromBasic(r *http.Request) (*context.Admin, bool, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, false, nil
	}

	if subtle.ConstantTimeCompare([]byte(username), []byte(mid.config.Admin.Username)) != 1 {
		return nil, false, nil
	}

	matches, err := gopass.ComparePasswordAndHash(password, mid.adminPasswordHash)
	if err != nil {
		return nil, false, err
	}
	if !matches {
		return nil, false, nil
	}

	return &context.Admin{Username: username, Method: "basic"}, true, nil
}

// RequireAdmin rejects requests that Authenticate did not identify as admin.
func (mid *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mid.config.AdminConfigured() {
			mid.errHandler.AdminNotConfigured(w, r)
			return
		}

		if context.ContextGetAuthenticatedAdmin(r) == nil {
			mid.errHandler.BasicAuthenticationRequired(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireBasicAdmin only accepts Basic credentials. It guards token issuance
// so a token cannot be used to mint a fresh one.
func (mid *Middleware) RequireBasicAdmin(next http.Handler) http.Handler {
	return mid.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if admin := context.ContextGetAuthenticatedAdmin(r); admin.Method != "basic" {
			mid.errHandler.BasicAuthenticationRequired(w, r)
			return
		}

		next.ServeHTTP(w, r)
	}))
}
