// Package config loads process-level configuration: the engine's own
// runtime knobs (exchange credentials, store path, metrics/health ports,
// Telegram token), layered as .env then process environment, read via
// viper — distinct from the per-user BotConfig persisted in the store.
// Command-line flags are not bound here; cmd/engine applies its own.
//
// Grounded on the teacher's env.go (dependency-free .env loader + typed
// getEnv helpers) and on 0xtitan6-polymarket-mm's viper-based config
// loading, combined per SPEC_FULL.md §10.3's two-layer design: godotenv
// seeds the process environment, viper reads it with typed defaults.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"spotengine/internal/domain"
)

// ProcessConfig holds everything the binary needs to boot, independent of
// any particular user's BotConfig.
type ProcessConfig struct {
	BinanceAPIKey    string
	BinanceAPISecret string

	TelegramBotToken string
	TelegramChatID   int64

	StorePath string

	HealthAddr  string
	MetricsAddr string

	TickInterval time.Duration

	DryRun bool
}

// Load reads .env (if present, ignored otherwise — matching the teacher's
// "never requires export $(cat .env)" convention) then binds viper to the
// environment with SPOTENGINE_-prefixed keys and typed defaults.
func Load(envFile string) (ProcessConfig, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile) // absence is not an error; env/flags still apply

	v := viper.New()
	v.SetEnvPrefix("SPOTENGINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("binance.api_key", "")
	v.SetDefault("binance.api_secret", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", int64(0))
	v.SetDefault("store.path", "spotengine.db")
	v.SetDefault("health.addr", ":8080")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("tick.interval", "5s")
	v.SetDefault("dry_run", false)

	tickInterval, err := time.ParseDuration(v.GetString("tick.interval"))
	if err != nil {
		tickInterval = 5 * time.Second
	}

	return ProcessConfig{
		BinanceAPIKey:    v.GetString("binance.api_key"),
		BinanceAPISecret: v.GetString("binance.api_secret"),
		TelegramBotToken: v.GetString("telegram.bot_token"),
		TelegramChatID:   v.GetInt64("telegram.chat_id"),
		StorePath:        v.GetString("store.path"),
		HealthAddr:       v.GetString("health.addr"),
		MetricsAddr:      v.GetString("metrics.addr"),
		TickInterval:     tickInterval,
		DryRun:           v.GetBool("dry_run"),
	}, nil
}

// DefaultBotConfig builds a reasonable first-run BotConfig for a new user,
// matching the teacher's env-driven default-threshold convention
// (initThresholdsFromEnv in env.go) but returning the typed per-user struct
// spec.md §3 defines, since BotConfig now lives one-per-user rather than as
// package globals.
func DefaultBotConfig(userID string, watchlist []string) domain.BotConfig {
	return domain.BotConfig{
		UserID:    userID,
		BotStatus: domain.StatusActive,
		Scanner: domain.ScannerConfig{
			Watchlist:        watchlist,
			RefreshInterval:  5 * time.Second,
			MinVolumeUSD24h:  1_000_000,
			MaxSpreadBps:     15,
			MaxSpreadBpsEvent: 40,
			MinTopOfBookUSD:  5_000,
			CooldownPerPair:  10 * time.Minute,
			MinCandleHistory: 100,
		},
		Risk: domain.RiskConfig{
			RPct:                  0.01,
			DailyStopR:            -3,
			WeeklyStopR:           -8,
			MaxOpenR:              6,
			MaxExposurePct:        0.5,
			MaxPositions:          5,
			CorrelationGuard:      true,
			SlippageGuardBps:      20,
			SlippageGuardBpsEvent: 60,
			MaxRPerTrade:          1.0,
		},
		Reserve: domain.ReserveConfig{
			TargetPct:            0.2,
			FloorPct:             0.1,
			RefillFromProfitsPct: 0.25,
		},
		PlaybookA: domain.PlaybookAConfig{
			Enabled: true, Lookback: 20, VolumeMult: 1.5, StopATRMult: 1.5,
			BreakevenR: 0.5, ScaleR: 1.0, ScalePct: 0.5, TrailATRMult: 1.0,
		},
		PlaybookB: domain.PlaybookBConfig{
			Enabled: true, DeviationATRMult: 2.0, StopATRMult: 1.0, TargetR: 1.0,
			MaxTradesPerSession: 3, TimeStop: 30 * time.Minute,
		},
		PlaybookC: domain.PlaybookCConfig{
			Enabled: true, EventWindow: 15 * time.Minute, StopATRMult: 2.0,
			Scale1R: 1.0, Scale1Pct: 0.33, Scale2R: 2.0, Scale2Pct: 0.33,
			TargetR: 3.0, TrailATRMult: 1.5,
		},
		PlaybookD: domain.PlaybookDConfig{
			Enabled: true, StopATRMult: 1.5,
		},
	}
}
