// Command gatewayd runs the payment gateway's HTTP server: order creation,
// merchant/order query, and the background reconciliation loops that
// detect payment and dispatch notify callbacks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/qiupay/gateway/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("gatewayd: fatal error")
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config yaml (optional; env overrides and defaults apply regardless)")
	envPath := flag.String("env", ".env", "path to a .env file to load before reading configuration (missing file is not an error)")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", *envPath).Msg("gatewayd: failed to load .env file")
	}

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("gatewayd: error during shutdown")
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	serveErrs := make(chan error, 1)
	go func() {
		app.Logger().Info().Str("address", cfg.Server.Address).Msg("gatewayd: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErrs:
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}

	app.Logger().Info().Msg("gatewayd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
