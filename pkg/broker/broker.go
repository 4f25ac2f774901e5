// Package broker provides the public entry point for initializing the
// Broker server.
//
// Usage:
//
//	srv, err := broker.New(ctx, planeBaseURL)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package broker

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/edda-mesh/bifrost-heimdall/internal/anomaly"
	"github.com/edda-mesh/bifrost-heimdall/internal/brokerapi"
	"github.com/edda-mesh/bifrost-heimdall/internal/config"
	"github.com/edda-mesh/bifrost-heimdall/internal/connection"
	"github.com/edda-mesh/bifrost-heimdall/internal/natutil"
	"github.com/edda-mesh/bifrost-heimdall/internal/queue"
	"github.com/edda-mesh/bifrost-heimdall/internal/ratelimit"
	"github.com/edda-mesh/bifrost-heimdall/internal/relay"
	"github.com/edda-mesh/bifrost-heimdall/internal/routing"
	"github.com/edda-mesh/bifrost-heimdall/internal/telemetry"
	"github.com/edda-mesh/bifrost-heimdall/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// Server holds the initialized Broker.
type Server struct {
	Handler http.Handler
	Port    int

	Registry    *connection.Registry
	Status      *connection.StatusTracker
	RateLimiter *ratelimit.Limiter
	Router      *routing.Router
	Queues      *queue.Manager
	// AsgardRelay and YggdrasilRelay are exposed at the contracts.RelayClient
	// boundary so an embedder can swap in an alternate relay transport
	// without importing internal/relay.
	AsgardRelay    contracts.RelayClient
	YggdrasilRelay contracts.RelayClient

	shutdownOtel func(context.Context) error
}

// New initializes the Broker from environment configuration. planeBaseURL
// is the Plane's HTTP base URL the Broker calls out to for challenge
// issuance, proof verification, and mesh enforcement.
func New(ctx context.Context, planeBaseURL string) (*Server, error) {
	return NewWithConfig(ctx, config.Load(), planeBaseURL)
}

// NewWithConfig initializes the Broker with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, planeBaseURL string) (*Server, error) {
	shutdownOtel, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("broker: init telemetry: %w", err)
	}

	registry := connection.NewRegistry()
	status := connection.NewStatusTracker()
	limiter := ratelimit.New(ratelimit.Config{PerMinute: cfg.RateLimit.PerMinute, PerHour: cfg.RateLimit.PerHour})
	queues := queue.NewManager(cfg.Queue)

	asgard := relayClient(cfg.Relays.AsgardURL)
	yggdrasil := relayClient(cfg.Relays.YggdrasilURL)
	router := routing.NewRouter(registry, asgard, yggdrasil)

	plane := brokerapi.NewHTTPPlaneClient(planeBaseURL)

	detectors := &detectorRegistry{
		cfg: anomaly.Config{
			WindowSize:     cfg.Anomaly.WindowSize,
			WindowDuration: cfg.Anomaly.WindowDuration,
			AlertThreshold: cfg.Anomaly.AlertThreshold,
			MaxReasonable:  cfg.Anomaly.MaxReasonable,
		},
		byDevice: make(map[string]*anomaly.Detector),
	}

	deps := brokerapi.Deps{
		Registry:    registry,
		Status:      status,
		RateLimiter: limiter,
		Anomalies:   detectors.forDevice,
		Router:      router,
		Queues:      queues,
		Plane:       plane,
		NAT:         natutil.UnavailableSTUNClient{},
		Log:         log.Logger.With().Str("component", "broker").Logger(),
	}

	return &Server{
		Handler:        brokerapi.NewRouter(deps),
		Port:           cfg.Broker.HTTPPort,
		Registry:       registry,
		Status:         status,
		RateLimiter:    limiter,
		Router:         router,
		Queues:         queues,
		AsgardRelay:    asgard,
		YggdrasilRelay: yggdrasil,
		shutdownOtel:   shutdownOtel,
	}, nil
}

func relayClient(baseURL string) relay.Client {
	if baseURL == "" {
		return relay.NopClient{}
	}
	return relay.NewHTTPClient(baseURL)
}

// detectorRegistry hands out one anomaly.Detector per device, created
// lazily on first use.
type detectorRegistry struct {
	mu       sync.Mutex
	cfg      anomaly.Config
	byDevice map[string]*anomaly.Detector
}

func (r *detectorRegistry) forDevice(deviceID string) *anomaly.Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.byDevice[deviceID]; ok {
		return d
	}
	d := anomaly.New(r.cfg)
	r.byDevice[deviceID] = d
	return d
}

// Shutdown flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownOtel != nil {
		return s.shutdownOtel(ctx)
	}
	return nil
}
