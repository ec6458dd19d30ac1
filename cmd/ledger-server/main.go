package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"beanbet/internal/auth"
	"beanbet/internal/config"
	"beanbet/internal/ledger"
	"beanbet/internal/logging"
	"beanbet/internal/store"
)

func main() {
	app, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(app.Log)
	cfg := app.Server

	loc, err := time.LoadLocation(cfg.QuotaTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.QuotaTimezone).Msg("invalid quota timezone")
	}

	st, err := store.NewPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}

	led := ledger.New(st, ledger.Config{
		BonusAmount:     cfg.BonusAmount,
		BonusDailyLimit: cfg.BonusDailyLimit,
		QuotaLocation:   loc,
	})
	authSvc := auth.NewService(led, st, cfg.JWTSecret,
		time.Duration(cfg.TokenTTLHours)*time.Hour,
		cfg.StartingBalance, cfg.DefaultCurrency)

	r := newRouter(led, authSvc, st, cfg)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	log.Info().Msg("server stopped")
}
