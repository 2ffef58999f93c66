package relay

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rigshare/rigshare/internal/auth"
	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/hub"
	"github.com/rigshare/rigshare/internal/obs"
)

const (
	defaultAuthDeadline  = 30 * time.Second
	defaultSessionQueue  = 16
	defaultMaxFrameBytes = 1 << 20
)

// Options tune the endpoint server.
type Options struct {
	// AuthDeadline bounds the wait for the first frame. Zero picks the
	// default, negative disables the deadline.
	AuthDeadline time.Duration
	// SessionQueue is the per-session outbound queue length.
	SessionQueue int
	// MaxFrameBytes caps a single inbound frame.
	MaxFrameBytes int64
	// CheckOrigin overrides the upgrade origin policy. The default
	// admits any origin; the secrets gate the endpoints, not origins.
	CheckOrigin func(*http.Request) bool
}

// Server terminates the three role endpoints.
type Server struct {
	gate     *gate.Gate
	hub      *hub.Hub
	verifier *auth.Verifier
	engine   Engine
	upgrader websocket.Upgrader

	authDeadline  time.Duration
	queueSize     int
	maxFrameBytes int64
}

func NewServer(g *gate.Gate, h *hub.Hub, v *auth.Verifier, e Engine, o Options) *Server {
	if o.AuthDeadline == 0 {
		o.AuthDeadline = defaultAuthDeadline
	}
	if o.SessionQueue <= 0 {
		o.SessionQueue = defaultSessionQueue
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = defaultMaxFrameBytes
	}
	origin := o.CheckOrigin
	if origin == nil {
		origin = func(*http.Request) bool { return true }
	}
	return &Server{
		gate:     g,
		hub:      h,
		verifier: v,
		engine:   e,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     origin,
		},
		authDeadline:  o.AuthDeadline,
		queueSize:     o.SessionQueue,
		maxFrameBytes: o.MaxFrameBytes,
	}
}

// SetupRoutes registers the role endpoints on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sharer", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, gate.Sharer, newSharerBehavior(s.engine))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, gate.Status, newStatusBehavior(s.hub))
	})
	mux.HandleFunc("/controller", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, gate.Controller, newControllerBehavior(s.engine, s.hub))
	})
}

// serve admits, upgrades, then runs the session on this handler
// goroutine. Rejections answer plain HTTP before any handshake.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, role gate.Role, b behavior) {
	adm, err := s.gate.TryAdmit(role)
	if err != nil {
		obs.Info("admission rejected", obs.Fields{"role": role.String(), "reason": err.Error(), "remote": r.RemoteAddr})
		http.Error(w, err.Error(), rejectStatus(err))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.gate.Release(adm)
		obs.ErrorsTotal.WithLabelValues("upgrade").Inc()
		obs.Error("websocket upgrade failed", obs.Fields{"role": role.String(), "err": err.Error()})
		return
	}
	if err := s.gate.Bind(adm, conn); err != nil {
		// Force-released while the handshake was in flight.
		conn.Close()
		return
	}
	obs.Debug("transport connected", obs.Fields{"role": role.String(), "remote": conn.RemoteAddr().String()})
	s.newSession(role, conn, adm, b).run()
}

func rejectStatus(err error) int {
	switch {
	case errors.Is(err, gate.ErrNoSharer):
		return http.StatusPreconditionFailed
	case errors.Is(err, gate.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}
