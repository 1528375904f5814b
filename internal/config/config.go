package config

import (
	"log/slog"
	"time"

	"github.com/cradoe/leverpad/internal/env"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	Redis struct {
		Addr string
		DB   int
	}
	KafkaServers string
	Chain        struct {
		RpcURL  string
		Timeout time.Duration
	}
	Wallets struct {
		Home          string
		International string
		HomeCountry   string
	}
	Geo struct {
		LookupURL string
		Timeout   time.Duration
		CacheTTL  time.Duration
	}
	Limits struct {
		MinDepositSol      decimal.Decimal
		MinWithdrawalSol   decimal.Decimal
		WithdrawalLockDays int
	}
	Verification struct {
		Tolerance             decimal.Decimal
		InstructionFallback   bool
		FallbackRequireSource bool
	}
	Router struct {
		AmountThreshold          decimal.Decimal
		SmallHomeWeight          float64
		LargeInternationalWeight float64
	}
	OffRamp struct {
		MerchantID       string
		ApiSecret        string
		MinDepositUsd    decimal.Decimal
		FallbackSolPrice decimal.Decimal
	}
	PriceOracle struct {
		ApiKey  string
		Timeout time.Duration
	}
	Admin struct {
		Username string
		Password string
		TokenTTL time.Duration
	}
	Jwt struct {
		SecretKey string
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	FileUploader struct {
		CloudName string
		ApiKey    string
		ApiSecret string
	}
}

// Load reads the environment once at startup. Values in .env never override
// variables that are already set in the process environment.
func Load(logger *slog.Logger) Config {
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file loaded", "error", err)
	}

	var cfg Config

	// Default values are for development only.
	// Make sure no production-level value is exposed as a default here.
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/leverpad?sslmode=disable")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Redis.Addr = env.GetString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.DB = env.GetInt("REDIS_DB", 0)

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")

	cfg.Chain.RpcURL = env.GetString("QUICKNODE_RPC", "https://api.mainnet-beta.solana.com", "SOLANA_RPC_URL")
	cfg.Chain.Timeout = env.GetDuration("CHAIN_RPC_TIMEOUT", 5*time.Second)

	// an empty pool is valid, the router falls back to the built-in default wallet
	cfg.Wallets.Home = env.GetString("PLATFORM_WALLET", "")
	cfg.Wallets.International = env.GetString("GLOBAL_PLATFORM_WALLET", "")
	cfg.Wallets.HomeCountry = env.GetString("HOME_COUNTRY", "IL")

	cfg.Geo.LookupURL = env.GetString("GEO_LOOKUP_URL", "https://ipapi.co")
	cfg.Geo.Timeout = env.GetDuration("GEO_LOOKUP_TIMEOUT", 3*time.Second)
	cfg.Geo.CacheTTL = env.GetDuration("GEO_CACHE_TTL", time.Hour)

	cfg.Limits.MinDepositSol = env.GetDecimal("MIN_DEPOSIT_SOL", "0.04")
	cfg.Limits.MinWithdrawalSol = env.GetDecimal("MIN_WITHDRAWAL_SOL", "0.04")
	cfg.Limits.WithdrawalLockDays = env.GetInt("WITHDRAWAL_LOCK_DAYS", 90)

	cfg.Verification.Tolerance = env.GetDecimal("DEPOSIT_TOLERANCE", "0.01")
	cfg.Verification.InstructionFallback = env.GetBool("DEPOSIT_INSTRUCTION_FALLBACK", true)
	cfg.Verification.FallbackRequireSource = env.GetBool("DEPOSIT_FALLBACK_REQUIRE_SOURCE", false)

	cfg.Router.AmountThreshold = env.GetDecimal("ROUTER_AMOUNT_THRESHOLD", "0.5")
	cfg.Router.SmallHomeWeight = env.GetFloat("ROUTER_SMALL_HOME_WEIGHT", 0.7)
	cfg.Router.LargeInternationalWeight = env.GetFloat("ROUTER_LARGE_INTL_WEIGHT", 0.9)

	cfg.OffRamp.MerchantID = env.GetString("ATLOS_MERCHANT_ID", "")
	cfg.OffRamp.ApiSecret = env.GetString("ATLOS_API_SECRET", "")
	cfg.OffRamp.MinDepositUsd = env.GetDecimal("ATLOS_MIN_USD", "20")
	cfg.OffRamp.FallbackSolPrice = env.GetDecimal("ATLOS_FALLBACK_SOL_PRICE", "150", "FALLBACK_SOL_PRICE")

	cfg.PriceOracle.ApiKey = env.GetString("BIRDEYE_API_KEY", "")
	cfg.PriceOracle.Timeout = env.GetDuration("PRICE_ORACLE_TIMEOUT", 5*time.Second)

	// admin routes answer 500 until both are set
	cfg.Admin.Username = env.GetString("ADMIN_USERNAME", "")
	cfg.Admin.Password = env.GetString("ADMIN_PASSWORD", "")
	cfg.Admin.TokenTTL = env.GetDuration("ADMIN_TOKEN_TTL", 12*time.Hour)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	// server errors won't be sent via email if NOTIFICATIONS_EMAIL is not set
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Leverpad <no_reply@example.org>")

	cfg.FileUploader.CloudName = env.GetString("CLOUDINARY_CLOUD_NAME", "")
	cfg.FileUploader.ApiKey = env.GetString("CLOUDINARY_API_KEY", "")
	cfg.FileUploader.ApiSecret = env.GetString("CLOUDINARY_API_SECRET", "")

	return cfg
}

// OffRampConfigured reports whether order creation and postbacks can run.
func (c Config) OffRampConfigured() bool {
	return c.OffRamp.MerchantID != "" && c.OffRamp.ApiSecret != ""
}

func (c Config) AdminConfigured() bool {
	return c.Admin.Username != "" && c.Admin.Password != ""
}
