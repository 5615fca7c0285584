package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ykarpov/brokersim/internal/server"
	"github.com/ykarpov/brokersim/pkg/broker"
	"github.com/ykarpov/brokersim/pkg/candles"
	"github.com/ykarpov/brokersim/pkg/instruments"
	"github.com/ykarpov/brokersim/pkg/moex"
)

const Version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to the yaml configuration")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogMode)
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	logger.Info("brokersim " + Version)
	defer logger.Info("done")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := moex.NewClient(cfg.MoexBaseURL, logger)

	store := candles.NewStore(cfg.CacheDir, logger)
	loader := candles.NewLoader(client, store, logger)
	extender := candles.NewLoader(client, store, logger, candles.WithoutBoundsTrim())
	instrStore := instruments.NewStore(client, cfg.CacheDir, logger)

	session := broker.NewSession(loader, extender, instrStore, logger,
		broker.WithStrictness(cfg.StrictMoneyBalance, cfg.StrictQuantityBalance))

	handler := server.NewHandler(session, logger)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", cfg.Listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(mode string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if mode == "prod" {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableCaller = true

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
