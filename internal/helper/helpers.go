package helper

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// ErrorReporter receives failures from background tasks. It is set once
// the error handler exists, which itself depends on this package.
type ErrorReporter interface {
	ReportServerError(r *http.Request, err error)
}

type HelperRepository struct {
	baseUrl  string
	WG       *sync.WaitGroup
	logger   *slog.Logger
	Reporter ErrorReporter
}

func New(baseUrl string, wg *sync.WaitGroup, logger *slog.Logger) *HelperRepository {
	return &HelperRepository{
		baseUrl: baseUrl,
		WG:      wg,
		logger:  logger,
	}
}

func (h *HelperRepository) NewEmailData() map[string]any {
	data := map[string]any{
		"BaseURL": h.baseUrl,
	}

	return data
}

// BackgroundTask runs fn outside the request. The server waits for running
// tasks before it exits.
func (h *HelperRepository) BackgroundTask(r *http.Request, fn func() error) {
	h.WG.Add(1)

	go func() {
		defer h.WG.Done()

		defer func() {
			err := recover()
			if err != nil {
				h.report(r, fmt.Errorf("%s", err))
			}
		}()

		err := fn()
		if err != nil {
			h.report(r, err)
		}
	}()
}

func (h *HelperRepository) report(r *http.Request, err error) {
	if h.Reporter != nil {
		h.Reporter.ReportServerError(r, err)
		return
	}
	h.logger.Error("background task failed", "error", err)
}
