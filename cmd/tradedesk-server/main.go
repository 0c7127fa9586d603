package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	"tradedesk/internal/engine"
	"tradedesk/internal/httpapi"
	"tradedesk/internal/notify"
	"tradedesk/internal/risk"
	"tradedesk/internal/store"
	"tradedesk/internal/util"
)

func main() {
	cfgPath := "config/tradedesk.yaml"
	if p := os.Getenv("TRADEDESK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath, cfg.Risk.InitialAvailable)
	if err != nil {
		log.Fatalf("opening trade store: %v", err)
	}
	defer st.Close()

	archive := store.NewArchiveStore(cfg.Storage.ArchiveDir)

	var gateway broker.Gateway
	if cfg.Trading.PaperMode {
		gateway = broker.NewSimulatorGateway()
		logger.Warn("paper mode enabled, orders are simulated")
	} else {
		if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
			log.Fatal("live mode needs APCA_API_KEY_ID and APCA_API_SECRET_KEY")
		}
		gateway = broker.NewAlpacaGateway(
			cfg.Alpaca.APIKey,
			cfg.Alpaca.APISecret,
			cfg.Alpaca.BaseURL,
			cfg.Alpaca.DataURL,
			cfg.Alpaca.RateLimitPerMin,
		)
	}

	hub := notify.NewHub(logger)
	ledger := risk.NewLedger(st, risk.Limits{
		MinCombined:  cfg.Risk.MinCombined,
		MaxAvailable: cfg.Risk.MaxAvailable,
	}, logger)

	eng := engine.New(gateway, st, archive, ledger, hub, engine.Config{
		Workers:       cfg.Trading.Workers,
		PollInterval:  cfg.Trading.PollInterval(),
		BuyTimeout:    time.Duration(cfg.Trading.BuyTimeoutSecs) * time.Second,
		AdjustTimeout: time.Duration(cfg.Trading.AdjustTimeoutSecs) * time.Second,
		ExitTimeout:   time.Duration(cfg.Trading.ExitTimeoutSecs) * time.Second,
		StopLossPct:   cfg.Trading.StopLossPct,
		TargetPct:     cfg.Trading.TargetPct,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng.Start(ctx)

	api := httpapi.NewServer(eng, st, st, ledger, hub, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: api.Handler()}

	go func() {
		logger.Info("tradedesk-server listening", "addr", addr, "gateway", gateway.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	eng.Stop()
}
