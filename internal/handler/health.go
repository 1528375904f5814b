package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type healthCheckHandler struct {
	err     *errHandler.ErrorRepository
	pingers map[string]Pinger
}

// NewHealthCheckHandler reports the service as up and, for each named
// dependency, whether it answers a ping.
func NewHealthCheckHandler(err *errHandler.ErrorRepository, pingers map[string]Pinger) *healthCheckHandler {
	return &healthCheckHandler{
		err:     err,
		pingers: pingers,
	}
}

func (h *healthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dependencies := map[string]string{}
	for name, p := range h.pingers {
		status := "up"
		if err := p.Ping(ctx); err != nil {
			status = "down"
		}
		dependencies[name] = status
	}

	data := map[string]any{
		"status":       "ok",
		"dependencies": dependencies,
	}

	err := response.JSONOkResponse(w, data, "Up and grateful", nil)
	if err != nil {
		h.err.ServerError(w, r, err)
	}
}
