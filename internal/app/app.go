package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cradoe/leverpad/internal/cache"
	"github.com/cradoe/leverpad/internal/chain"
	"github.com/cradoe/leverpad/internal/config"
	"github.com/cradoe/leverpad/internal/deposit"
	"github.com/cradoe/leverpad/internal/errHandler"
	"github.com/cradoe/leverpad/internal/file"
	"github.com/cradoe/leverpad/internal/geo"
	"github.com/cradoe/leverpad/internal/helper"
	"github.com/cradoe/leverpad/internal/metrics"
	"github.com/cradoe/leverpad/internal/price"
	"github.com/cradoe/leverpad/internal/repository"
	"github.com/cradoe/leverpad/internal/router"
	"github.com/cradoe/leverpad/internal/smtp"
	"github.com/cradoe/leverpad/internal/stream"
	"github.com/cradoe/leverpad/internal/withdrawal"
	"github.com/cradoe/leverpad/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

// Essential services and resources are exposed to the application
// this makes it possible for methods to have access to these items and when they need them
type Application struct {
	Config       config.Config
	DB           repository.Database
	Cache        *cache.Cache
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	WG           sync.WaitGroup
	Kafka        *stream.KafkaStream
	Metrics      *metrics.Metrics
	FileUploader *file.FileUploader

	Verifier *deposit.Verifier
	Router   *router.Router
	OffRamp  *deposit.OffRamp
	Gate     *withdrawal.Gate

	errorHandler *errHandler.ErrorRepository
	helper       *helper.HelperRepository
}

func NewApplication(cfg config.Config, logger *slog.Logger) (*Application, error) {
	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	kafkaStream, err := stream.New(cfg.KafkaServers, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event stream: %w", err)
	}

	app := &Application{
		Config:       cfg,
		DB:           db,
		Cache:        cache.New(cfg.Redis.Addr, cfg.Redis.DB),
		Logger:       logger,
		Mailer:       mailer,
		Kafka:        kafkaStream,
		Metrics:      metrics.New(prometheus.DefaultRegisterer),
		FileUploader: file.New(cfg.FileUploader.CloudName, cfg.FileUploader.ApiKey, cfg.FileUploader.ApiSecret, logger),
	}

	app.helper = helper.New(cfg.BaseURL, &app.WG, logger)
	app.errorHandler = errHandler.New(cfg.Notifications.Email, mailer, logger, app.helper)
	app.helper.Reporter = app.errorHandler

	app.wireServices()

	return app, nil
}

// wireServices builds the deposit, routing and withdrawal services from the
// already connected stores.
func (app *Application) wireServices() {
	cfg := app.Config

	locator := geo.NewLocator(geo.Options{
		BaseURL:        cfg.Geo.LookupURL,
		Timeout:        cfg.Geo.Timeout,
		DefaultCountry: cfg.Wallets.HomeCountry,
		Cache:          app.Cache,
		CacheTTL:       cfg.Geo.CacheTTL,
	}, app.Logger)

	app.Router = router.New(router.Options{
		Pool: router.NewPool(cfg.Wallets.Home, cfg.Wallets.International),
		Policy: router.Policy{
			AmountThreshold:          cfg.Router.AmountThreshold,
			SmallHomeWeight:          cfg.Router.SmallHomeWeight,
			LargeInternationalWeight: cfg.Router.LargeInternationalWeight,
			HomeCountry:              cfg.Wallets.HomeCountry,
		},
		Locator: locator,
		Metrics: app.Metrics,
	}, app.Logger)

	app.Verifier = deposit.NewVerifier(deposit.VerifierDeps{
		Ledger:    app.DB.Deposit(),
		Profiles:  app.DB.Profile(),
		Chain:     chain.NewRPCClient(cfg.Chain.RpcURL, cfg.Chain.Timeout),
		Router:    app.Router,
		Locker:    app.Cache,
		Publisher: app.Kafka,
		Metrics:   app.Metrics,
	}, deposit.Policy{
		MinAmount:             cfg.Limits.MinDepositSol,
		Tolerance:             cfg.Verification.Tolerance,
		InstructionFallback:   cfg.Verification.InstructionFallback,
		FallbackRequireSource: cfg.Verification.FallbackRequireSource,
	}, app.Logger)

	oracle := price.NewOracle(price.Options{
		ApiKey:   cfg.PriceOracle.ApiKey,
		Timeout:  cfg.PriceOracle.Timeout,
		Fallback: cfg.OffRamp.FallbackSolPrice,
		Metrics:  app.Metrics,
	}, app.Logger)

	app.OffRamp = deposit.NewOffRamp(deposit.OffRampDeps{
		Orders:    app.DB.Order(),
		Profiles:  app.DB.Profile(),
		Prices:    oracle,
		Locker:    app.Cache,
		Publisher: app.Kafka,
		Metrics:   app.Metrics,
	}, deposit.OffRampConfig{
		MerchantID:    cfg.OffRamp.MerchantID,
		ApiSecret:     cfg.OffRamp.ApiSecret,
		MinDepositUsd: cfg.OffRamp.MinDepositUsd,
	}, app.Logger)

	app.Gate = withdrawal.NewGate(withdrawal.Options{
		Store:     app.DB.Withdrawal(),
		Publisher: app.Kafka,
		Metrics:   app.Metrics,
		Policy: withdrawal.Policy{
			MinAmount: cfg.Limits.MinWithdrawalSol,
			LockDays:  cfg.Limits.WithdrawalLockDays,
		},
	}, app.Logger)
}

// Close releases the stores. Pending Kafka messages are flushed first.
func (app *Application) Close() {
	if app.Kafka != nil {
		app.Kafka.Close()
	}
	if app.Cache != nil {
		app.Cache.Close()
	}
	app.DB.Close()
}

// StartWorkers launches the event consumers. They stop when ctx is cancelled.
func (app *Application) StartWorkers(ctx context.Context) {
	worker.New(&worker.Worker{
		KafkaStream:       app.Kafka,
		DB:                app.DB,
		Ctx:               ctx,
		Helper:            app.helper,
		Mailer:            app.Mailer,
		Logger:            app.Logger,
		NotificationEmail: app.Config.Notifications.Email,
	}).Start()
}
