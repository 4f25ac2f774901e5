// Package brokerapi implements the Broker's HTTP surface: the WebSocket
// upgrade endpoint devices connect through, plus an admin/health mux for
// operational visibility.
package brokerapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/anomaly"
	"github.com/edda-mesh/bifrost-heimdall/internal/connection"
	"github.com/edda-mesh/bifrost-heimdall/internal/natutil"
	"github.com/edda-mesh/bifrost-heimdall/internal/queue"
	"github.com/edda-mesh/bifrost-heimdall/internal/ratelimit"
	"github.com/edda-mesh/bifrost-heimdall/internal/routing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Deps bundles the subsystems the Broker's HTTP handlers and socket
// session loop delegate to.
type Deps struct {
	Registry    *connection.Registry
	Status      *connection.StatusTracker
	RateLimiter *ratelimit.Limiter
	Anomalies   func(deviceID string) *anomaly.Detector
	Router      *routing.Router
	Queues      *queue.Manager
	Plane       PlaneClient
	NAT         natutil.STUNClient
	Log         zerolog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRouter builds the chi mux serving the Broker's WebSocket endpoint
// and admin/health routes.
func NewRouter(deps Deps) http.Handler {
	if deps.NAT == nil {
		deps.NAT = natutil.UnavailableSTUNClient{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := &handler{deps: deps}
	r.Get("/healthz", h.health)
	r.Get("/ws", h.serveWS)
	return r
}

type handler struct {
	deps Deps
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","connections":` + strconv.Itoa(h.deps.Registry.Count()) + `}`))
}

// serveWS upgrades the HTTP request to a WebSocket connection. The
// connection is registered only after the Session's own handshake loop
// (version negotiation, then challenge/proof authentication, then mesh
// membership check) completes — see Session.Run.
func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	session := &Session{
		conn:        conn,
		registry:    h.deps.Registry,
		status:      h.deps.Status,
		rateLimiter: h.deps.RateLimiter,
		anomalies:   h.deps.Anomalies,
		router:      h.deps.Router,
		queues:      h.deps.Queues,
		plane:       h.deps.Plane,
		nat:         h.deps.NAT,
		log:         h.deps.Log,
		connectedAt: time.Now(),
	}
	go session.Run()
}
