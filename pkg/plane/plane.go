// Package plane provides the public entry point for initializing the
// Authorization Plane server.
//
// Usage:
//
//	srv, err := plane.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package plane

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/authz"
	"github.com/edda-mesh/bifrost-heimdall/internal/challenge"
	"github.com/edda-mesh/bifrost-heimdall/internal/config"
	"github.com/edda-mesh/bifrost-heimdall/internal/cryptoutil"
	"github.com/edda-mesh/bifrost-heimdall/internal/memstore"
	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/internal/pgstore"
	"github.com/edda-mesh/bifrost-heimdall/internal/planeapi"
	"github.com/edda-mesh/bifrost-heimdall/internal/store"
	"github.com/edda-mesh/bifrost-heimdall/internal/telemetry"
	"github.com/edda-mesh/bifrost-heimdall/internal/token"
	"github.com/edda-mesh/bifrost-heimdall/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// planeSigningKeyID names the Plane's own Ed25519 keypair in its KeyStore,
// distinct from any per-device key the Plane verifies proofs against.
const planeSigningKeyID = "plane-signing"

// challengeTTL bounds how long an issued challenge nonce remains valid.
const challengeTTL = 60 * time.Second

// Server holds the initialized Authorization Plane.
type Server struct {
	Handler http.Handler
	// Store is exposed as the contracts-level interface so an embedder can
	// swap in an alternate persistence backend without importing internal/store.
	Store contracts.Store
	Port  int

	Challenges *challenge.Issuer
	Tokens     *token.Service
	Leaks      *token.LeakDetector
	Authz      *authz.Engine
	MeshReg    *mesh.Registry
	MeshEnf    *mesh.Enforcer
	// MeshProvider is the same membership check MeshEnf consults, exposed
	// at the contracts.MeshMembershipProvider boundary for callers that
	// only need membership queries, not enforcement.
	MeshProvider contracts.MeshMembershipProvider

	closeStore   func()
	shutdownOtel func(context.Context) error
}

// New initializes the Plane from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the Plane with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdownOtel, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("plane: init telemetry: %w", err)
	}

	var (
		st         store.Store
		closeStore func()
	)
	if cfg.Plane.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.Plane.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("plane: open postgres store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("plane: migrate: %w", err)
		}
		st = pg
		closeStore = pg.Close
		log.Info().Msg("plane: postgres store initialized")
	} else {
		st = memstore.New()
		closeStore = func() {}
		log.Info().Msg("plane: in-memory store initialized (no PLANE_DATABASE_URL set)")
	}

	ks, err := cryptoutil.NewKeyStore(cfg.KeyStore.PrivateKeyDir, loadPassphrase(cfg.KeyStore.PassphraseEnv))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("plane: open keystore: %w", err)
	}
	var pub ed25519.PublicKey
	priv, err := ks.Load(planeSigningKeyID)
	if err == nil {
		pub = priv.Public().(ed25519.PublicKey)
	} else {
		pub, priv, err = ks.GenerateAndStore(planeSigningKeyID)
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("plane: provision signing key: %w", err)
		}
		log.Info().Msg("plane: generated new signing keypair")
	}

	challenges := challenge.NewIssuer(store.ChallengeAdapter{Store: st}, store.DeviceKeyAdapter{Store: st}, challengeTTL)
	tokens := token.NewService(store.TokenAdapter{Store: st}, pub, priv, cfg.Cache.ValidationTTL)
	leaks := token.NewLeakDetector(cfg.LeakDetector.MaxDevicesPerToken, cfg.LeakDetector.Window)
	authzEngine := authz.NewEngine()
	grants := authz.NewGrantStore()
	meshReg := mesh.NewRegistry(store.MeshAdapter{Store: st})
	meshProvider := &mesh.RegistryProvider{Registry: meshReg}
	meshEnf := mesh.NewEnforcer(meshProvider, cfg.Mesh.Enforce)

	deps := planeapi.Deps{
		Store:      st,
		Challenges: challenges,
		Tokens:     tokens,
		SessionTTL: cfg.TokenLT.SessionTTL,
		RefreshTTL: cfg.TokenLT.RefreshTTL,
		Leaks:      leaks,
		Authz:      authzEngine,
		Grants:     grants,
		MeshReg:    meshReg,
		MeshEnf:    meshEnf,
		Log:        log.Logger.With().Str("component", "plane").Logger(),
	}

	return &Server{
		Handler:      planeapi.NewRouter(deps),
		Store:        st,
		Port:         cfg.Plane.HTTPPort,
		Challenges:   challenges,
		Tokens:       tokens,
		Leaks:        leaks,
		Authz:        authzEngine,
		MeshReg:      meshReg,
		MeshEnf:      meshEnf,
		MeshProvider: meshProvider,
		closeStore:   closeStore,
		shutdownOtel: shutdownOtel,
	}, nil
}

func loadPassphrase(envVar string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return "insecure-default-dev-passphrase"
}

// Shutdown releases the store connection and flushes telemetry.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeStore != nil {
		s.closeStore()
	}
	if s.shutdownOtel != nil {
		return s.shutdownOtel(ctx)
	}
	return nil
}
