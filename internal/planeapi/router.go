// Package planeapi exposes the Authorization Plane's five interfaces —
// device authentication, token lifecycle, permission evaluation,
// connection validation, and mesh management — as REST/JSON over chi.
package planeapi

import (
	"net/http"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/authz"
	"github.com/edda-mesh/bifrost-heimdall/internal/challenge"
	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/internal/store"
	"github.com/edda-mesh/bifrost-heimdall/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Deps bundles the subsystems the Plane's HTTP handlers delegate to.
type Deps struct {
	Store       store.Store
	Challenges  *challenge.Issuer
	Tokens      *token.Service
	SessionTTL  time.Duration
	RefreshTTL  time.Duration
	Leaks       *token.LeakDetector
	Authz       *authz.Engine
	Grants      *authz.GrantStore
	MeshReg     *mesh.Registry
	MeshEnf     *mesh.Enforcer
	Log         zerolog.Logger
}

// NewRouter builds the chi mux for all five Plane interfaces.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(requestLogger(deps.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{deps: deps}

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/devices/register", h.registerDevice)
		r.Post("/challenges", h.issueChallenge)
		r.Post("/proofs", h.verifyProof)

		r.Post("/tokens/mint", h.mintToken)
		r.Post("/tokens/validate", h.validateToken)
		r.Post("/tokens/rotate", h.rotateToken)
		r.Post("/tokens/renew", h.renewToken)
		r.Post("/tokens/revoke", h.revokeToken)

		r.Post("/authz/evaluate", h.evaluatePermission)
		r.Post("/authz/grants", h.addGrant)

		r.Post("/connections/validate", h.validateConnection)

		r.Post("/mesh/approve", h.approveDevice)
		r.Post("/mesh/reject", h.rejectDevice)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("plane request")
		})
	}
}
