package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"mailroom/config"
	"mailroom/internal/bootstrap"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	log = log.With().Str("worker_id", cfg.WorkerID).Logger()
	if cfg.IsDevelopment() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	w, err := bootstrap.NewWorker(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize worker")
	}

	if err := w.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Dur("timeout", shutdownTimeout).Msg("shutting down")

	// Worker.Stop drains the pool; the outer timeout is a safety net.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", "mailroom").
		Logger()
}
