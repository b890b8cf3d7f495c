package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkroom/linkroom/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := server.LoadConfig()
	logger := server.NewLogger(cfg.LogLevel)

	logger.Info().Msg("Starting LinkRoom server...")

	sessions := server.NewSessionStore()
	groups := server.NewGroupRegistry(logger)
	hub := server.NewHub(groups, logger)
	go hub.Run()

	gateway := server.NewGateway(cfg, hub, groups, sessions, logger)
	mux := server.SetupRoutes(gateway)
	httpServer := server.CreateServer(cfg.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, logger)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("Server error")
		}
		return
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("Hub shutdown did not complete cleanly")
	}

	logger.Info().Msg("LinkRoom server stopped")
}
