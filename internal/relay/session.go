package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/obs"
	"github.com/rigshare/rigshare/internal/wire"
)

// writeTimeout bounds every frame write; a peer that cannot take a
// frame within it is treated as gone.
const writeTimeout = 10 * time.Second

// behavior is the role-specific part of a session.
type behavior interface {
	// attach runs once, right after the ok ack.
	attach(s *session) error
	// handleFrame processes one authenticated inbound frame on the
	// session's read goroutine.
	handleFrame(s *session, data []byte)
	// detach runs exactly once at session end and owns the teardown
	// order for its role: engine port, gate slot, hub events.
	detach(s *session)
}

// session drives one websocket through the shared lifecycle:
// Connecting, Authenticating, Relaying, Closed.
type session struct {
	srv      *Server
	role     gate.Role
	conn     *websocket.Conn
	adm      *gate.Admission
	behavior behavior

	out  chan []byte
	done chan struct{}
	once sync.Once

	authenticated bool
	startedAt     time.Time
}

func (srv *Server) newSession(role gate.Role, conn *websocket.Conn, adm *gate.Admission, b behavior) *session {
	return &session{
		srv:      srv,
		role:     role,
		conn:     conn,
		adm:      adm,
		behavior: b,
		out:      make(chan []byte, srv.queueSize),
		done:     make(chan struct{}),
	}
}

// run owns the read side of the connection and returns once the session
// is closed.
func (s *session) run() {
	defer s.teardown()

	s.conn.SetReadLimit(s.srv.maxFrameBytes)
	if d := s.srv.authDeadline; d > 0 {
		s.conn.SetReadDeadline(time.Now().Add(d))
	}
	_, first, err := s.conn.ReadMessage()
	if err != nil {
		obs.Debug("closed before authenticating", obs.Fields{"role": s.role.String(), "err": err.Error()})
		return
	}
	if !s.srv.verifier.Verify(s.role, first) {
		obs.Info("authentication failed", obs.Fields{"role": s.role.String(), "remote": s.conn.RemoteAddr().String()})
		return
	}
	s.conn.SetReadDeadline(time.Time{})
	s.authenticated = true
	s.startedAt = time.Now()
	obs.ActiveSessions.WithLabelValues(s.role.String()).Inc()
	obs.Info("session authenticated", obs.Fields{"role": s.role.String(), "remote": s.conn.RemoteAddr().String()})

	// Attach before the ack: once the client sees ok, its port and
	// subscriptions are live.
	if err := s.behavior.attach(s); err != nil {
		obs.Error("attach failed", obs.Fields{"role": s.role.String(), "err": err.Error()})
		return
	}

	// The ack goes out before the pump starts, so the connection has a
	// single writer at any time.
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, wire.AckOK); err != nil {
		obs.Debug("ack write failed", obs.Fields{"role": s.role.String(), "err": err.Error()})
		return
	}

	go s.writePump()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			obs.Debug("transport closed", obs.Fields{"role": s.role.String(), "err": err.Error()})
			return
		}
		s.behavior.handleFrame(s, data)
	}
}

// send enqueues a frame for the write pump, blocking while the queue is
// full. It reports false once the session is closed.
func (s *session) send(frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	case <-s.done:
		return false
	}
}

// trySend enqueues without blocking; a full queue drops the frame.
func (s *session) trySend(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		return false
	}
}

func (s *session) writePump() {
	for {
		select {
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				obs.Debug("write failed", obs.Fields{"role": s.role.String(), "err": err.Error()})
				// Unblocks the read loop, which finishes the teardown.
				s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// teardown runs once and is safe to call from any goroutine.
func (s *session) teardown() {
	s.once.Do(func() {
		close(s.done)
		s.behavior.detach(s)
		s.conn.Close()
		if s.authenticated {
			obs.ActiveSessions.WithLabelValues(s.role.String()).Dec()
			obs.SessionDurationSeconds.WithLabelValues(s.role.String()).Observe(time.Since(s.startedAt).Seconds())
			obs.Info("session closed", obs.Fields{"role": s.role.String()})
		}
	})
}

// pumpPort forwards engine output to the transport until the port or
// the session closes.
func pumpPort(s *session, p Port) {
	for batch := range p.Output() {
		if !s.send(batch.Encode()) {
			return
		}
		obs.FramesRelayedTotal.WithLabelValues(s.role.String(), "out").Inc()
	}
}
