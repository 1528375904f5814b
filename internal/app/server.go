package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultIdleTimeout    = time.Minute
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultShutdownPeriod = 30 * time.Second
)

// ServeHTTP listens until ctx is cancelled, then drains in-flight requests and
// waits for background tasks before returning.
func (app *Application) ServeHTTP(ctx context.Context) error {
	handler, err := app.routes()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.HttpPort),
		Handler:      handler,
		ErrorLog:     slog.NewLogLogger(app.Logger.Handler(), slog.LevelWarn),
		IdleTimeout:  defaultIdleTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	shutdownErrorChan := make(chan error, 1)

	go func() {
		<-ctx.Done()

		app.Logger.Info("shutting down server", slog.Group("server", "addr", srv.Addr))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownPeriod)
		defer cancel()

		shutdownErrorChan <- srv.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("starting server", slog.Group("server", "addr", srv.Addr))

	err = srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownErrorChan
	if err != nil {
		return err
	}

	app.WG.Wait()

	app.Logger.Info("stopped server", slog.Group("server", "addr", srv.Addr))

	return nil
}
