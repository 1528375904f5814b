package app

import (
	"net/http"

	"github.com/cradoe/leverpad/internal/handler"
	"github.com/cradoe/leverpad/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *Application) routes() (http.Handler, error) {
	mux := http.NewServeMux()

	middlewareRepo, err := middleware.New(app.errorHandler, app.Logger, app.Metrics, &app.Config)
	if err != nil {
		return nil, err
	}

	pingers := map[string]handler.Pinger{"database": app.DB}
	if app.Cache != nil {
		pingers["cache"] = app.Cache
	}
	healthHandler := handler.NewHealthCheckHandler(app.errorHandler, pingers)

	depositHandler := handler.NewDepositHandler(&handler.DepositHandler{
		Verifier:   app.Verifier,
		Router:     app.Router,
		Orders:     app.OffRamp,
		ErrHandler: app.errorHandler,
	})

	withdrawalHandler := handler.NewWithdrawalHandler(&handler.WithdrawalHandler{
		Gate:           app.Gate,
		WithdrawalRepo: app.DB.Withdrawal(),
		ErrHandler:     app.errorHandler,
	})

	profileHandler := handler.NewProfileHandler(&handler.ProfileHandler{
		ProfileRepo:  app.DB.Profile(),
		PositionRepo: app.DB.Position(),
		FileUploader: app.FileUploader,
		ErrHandler:   app.errorHandler,
	})

	adminHandler := handler.NewAdminHandler(&handler.AdminHandler{
		DB:         app.DB,
		Gate:       app.Gate,
		Config:     &app.Config,
		ErrHandler: app.errorHandler,
	})

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/deposits/verify", depositHandler.HandleVerifyDeposit)
	mux.HandleFunc("POST /v1/deposits/intents", depositHandler.HandleDepositIntent)
	mux.HandleFunc("GET /v1/deposits/wallet", depositHandler.HandleDepositWallet)
	mux.HandleFunc("POST /v1/deposits/orders", depositHandler.HandleCreateOrder)
	mux.HandleFunc("POST /v1/deposits/postback", depositHandler.HandlePostback)

	mux.HandleFunc("POST /v1/withdrawals", withdrawalHandler.HandleRequestWithdrawal)
	mux.HandleFunc("GET /v1/withdrawals/{walletAddress}", withdrawalHandler.HandleWithdrawalHistory)

	mux.HandleFunc("POST /v1/profiles", profileHandler.HandleSetupProfile)
	mux.HandleFunc("GET /v1/profiles/{walletAddress}", profileHandler.HandleGetProfile)
	mux.HandleFunc("POST /v1/profiles/{walletAddress}/avatar", profileHandler.HandleUploadAvatar)

	// admin
	mux.Handle("POST /v1/admin/tokens", middlewareRepo.RequireBasicAdmin(http.HandlerFunc(adminHandler.HandleIssueToken)))
	mux.Handle("POST /v1/admin/profiles/balance", middlewareRepo.RequireAdmin(http.HandlerFunc(adminHandler.HandleUpdateBalances)))
	mux.Handle("POST /v1/admin/profiles/ban", middlewareRepo.RequireAdmin(http.HandlerFunc(adminHandler.HandleToggleBan)))
	mux.Handle("GET /v1/admin/withdrawals", middlewareRepo.RequireAdmin(http.HandlerFunc(adminHandler.HandleListWithdrawals)))
	mux.Handle("POST /v1/admin/withdrawals/{id}/resolve", middlewareRepo.RequireAdmin(http.HandlerFunc(adminHandler.HandleResolveWithdrawal)))
	mux.Handle("GET /v1/admin/deposits", middlewareRepo.RequireAdmin(http.HandlerFunc(adminHandler.HandleListDeposits)))

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux))), nil
}
