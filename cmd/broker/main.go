// Broker is the Bifrost connection gateway: it upgrades device WebSocket
// connections, runs each through the Plane-backed authentication and mesh
// handshake, and routes messages between connected devices.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/broker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("broker: connection gateway starting")

	planeBaseURL := os.Getenv("PLANE_BASE_URL")
	if planeBaseURL == "" {
		planeBaseURL = "http://localhost:7100"
	}

	ctx := context.Background()
	srv, err := broker.New(ctx, planeBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("broker: failed to initialize")
	}
	defer srv.Shutdown(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.Port),
		Handler:      srv.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("broker: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", srv.Port).Str("plane_base_url", planeBaseURL).Msg("broker: ready")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("broker: server failed")
	}
}
