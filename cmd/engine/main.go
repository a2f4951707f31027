// Command engine is the program entrypoint: it wires the exchange client,
// persistence, and every trading subsystem together, then serves /healthz
// and /metrics while the Engine Root ticks each configured user.
//
// Boot sequence (spec.md §4.9, grounded on the teacher's main.go):
//  1. config.Load()       – read .env, bind viper, build ProcessConfig
//  2. store.Open()        – open/migrate the sqlite store
//  3. wire exchange client (Binance, or an in-memory FakeClient in -dry-run)
//  4. wire scanner, filter cache, execution router, alert service, engine
//  5. start Prometheus /healthz, /metrics on cfg.HealthAddr
//  6. Engine.Start() for every configured user
//  7. block on signal.NotifyContext, then Engine.Stop() + graceful shutdown
//
// Flags:
//
//	-env <path>      Path to a .env file (default ".env")
//	-dry-run         Use an in-memory FakeClient instead of live Binance
//	-users <csv>     Comma-separated user IDs to run (default "default")
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"spotengine/internal/alert"
	"spotengine/internal/config"
	"spotengine/internal/domain"
	"spotengine/internal/engine"
	"spotengine/internal/exchange"
	"spotengine/internal/execution"
	"spotengine/internal/money"
	"spotengine/internal/scanner"
	"spotengine/internal/store"
)

// defaultStartingEquity seeds a brand-new user's BotState when no persisted
// state exists yet (spec.md §3 "StartingEquity").
var defaultStartingEquity = money.FromFloat(10_000)

func main() {
	var envFile string
	var dryRun bool
	var usersCSV string
	flag.StringVar(&envFile, "env", ".env", "Path to .env file")
	flag.BoolVar(&dryRun, "dry-run", false, "Use an in-memory fake exchange client instead of live Binance")
	flag.StringVar(&usersCSV, "users", "default", "Comma-separated user IDs to start")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	pcfg, err := config.Load(envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("config: load failed")
	}
	dryRun = dryRun || pcfg.DryRun

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, pcfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("store: open failed")
	}
	defer st.Close()

	var client exchange.Client
	if dryRun {
		fc := exchange.NewFakeClient()
		client = fc
		log.Warn().Msg("engine: running with an in-memory fake exchange client (-dry-run)")
	} else {
		client = exchange.NewBinanceClient(pcfg.BinanceAPIKey, pcfg.BinanceAPISecret)
	}

	filters := exchange.NewFilterCache(client, 10*time.Minute)
	sc := scanner.New(client, log)
	router := execution.New(client, filters, log)

	alerts := alert.NewFromToken(log, func(a domain.Alert) {
		if err := st.InsertAlert(ctx, &a); err != nil {
			log.Warn().Err(err).Msg("alert: failed to persist")
		}
	}, pcfg.TelegramBotToken, pcfg.TelegramChatID)

	eng := engine.New(st, sc, router, filters, client, alerts, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: pcfg.HealthAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", pcfg.HealthAddr).Msg("engine: serving /healthz and /metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("engine: http server failed")
		}
	}()

	watchlist := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	for _, userID := range strings.Split(usersCSV, ",") {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		startUser(ctx, eng, st, log, userID, watchlist)
	}

	<-ctx.Done()
	log.Info().Msg("engine: shutdown signal received, stopping actors")
	for _, userID := range strings.Split(usersCSV, ",") {
		eng.Stop(strings.TrimSpace(userID))
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// startUser loads a user's persisted BotConfig/BotState, seeding sensible
// defaults on first run, then starts its Engine actor.
func startUser(ctx context.Context, eng *engine.Engine, st *store.Store, log zerolog.Logger, userID string, watchlist []string) {
	if err := st.EnsureUser(ctx, userID); err != nil {
		log.Error().Err(err).Str("user", userID).Msg("engine: failed to ensure user row")
		return
	}

	cfg, err := st.LoadBotConfig(ctx, userID)
	if err != nil {
		cfg = config.DefaultBotConfig(userID, watchlist)
		if err := st.SaveBotConfig(ctx, cfg); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("engine: failed to seed default config")
			return
		}
	}

	state, err := st.LoadBotState(ctx, userID)
	if err != nil {
		state = domain.NewBotState(userID, defaultStartingEquity, time.Now().UTC())
		if err := st.SaveBotState(ctx, state); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("engine: failed to seed default state")
			return
		}
	}

	eng.Start(ctx, userID, cfg, state)
	log.Info().Str("user", userID).Msg("engine: actor started")
}
