package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	shutdownReason = "server shutting down"
)

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerReply struct {
	session *Session
	err     error
}

type registerCmd struct {
	baseRegistryCmd
	sessionID  string
	connection *websocket.Conn
	reply      chan registerReply
}

type unregisterCmd struct {
	baseRegistryCmd
	session *Session
}

type countCmd struct {
	baseRegistryCmd
	reply chan int
}

type stopCmd struct {
	baseRegistryCmd
}

// Registry owns the live sessions. All map access happens on its run goroutine.
type Registry struct {
	cmdCh       chan registryCmd
	clock       clockwork.Clock
	hub         *Hub
	encoder     Encoder
	sessions    map[string]*Session
	maxSessions int
	done        chan struct{}
	doneOnce    sync.Once
	stopTimeout time.Duration
}

// NewRegistry starts the registry actor. maxSessions <= 0 means unlimited.
func NewRegistry(hub *Hub, encoder Encoder, clock clockwork.Clock, maxSessions int) *Registry {
	r := &Registry{
		cmdCh:       make(chan registryCmd, 256),
		clock:       clock,
		hub:         hub,
		encoder:     encoder,
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go r.run()
	return r
}

// Serve runs a connection as a session until either side tears it down. It blocks for the
// lifetime of the session and closes the connection before returning.
func (r *Registry) Serve(conn *websocket.Conn) error {
	s, err := r.Register(conn)
	if err != nil {
		return err
	}
	s.readLoop()
	r.Unregister(s)
	return nil
}

// Register creates a forwarding session for conn. The session id is the connection's remote
// address. On error the connection has been closed, unless it already belongs to a live session.
func (r *Registry) Register(conn *websocket.Conn) (*Session, error) {
	cmd := registerCmd{
		sessionID:  conn.RemoteAddr().String(),
		connection: conn,
		reply:      make(chan registerReply, 1),
	}
	if !r.send(cmd) {
		_ = conn.Close()
		return nil, domain.ErrRegistryStopped
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-cmd.reply:
		return reply.session, reply.err
	case <-r.done:
		_ = conn.Close()
		return nil, domain.ErrRegistryStopped
	case <-timer.Chan():
		_ = conn.Close()
		return nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister stops s and forgets it. Unknown or already removed sessions are ignored.
// The session is stopped on the caller's goroutine so a slow writer never holds up the actor.
func (r *Registry) Unregister(s *Session) {
	s.stop()
	r.send(unregisterCmd{session: s})
}

// SessionCount returns the number of live sessions, or -1 if the registry did not answer.
func (r *Registry) SessionCount() int {
	reply := make(chan int, 1)
	if !r.send(countCmd{reply: reply}) {
		return 0
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-r.done:
		return 0
	case <-timer.Chan():
		slog.Warn("SessionCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every session with a close frame and shuts the actor down. It blocks until the
// actor exits or the stop timeout elapses.
func (r *Registry) Stop() {
	if !r.send(stopCmd{}) {
		return
	}

	timeout := r.clock.NewTimer(r.stopTimeout)
	defer timeout.Stop()

	select {
	case <-r.done:
		slog.Info("Session registry stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Session registry stop timeout exceeded", "timeout", r.stopTimeout)
		metrics.RegistryStopTimeoutsTotal.Inc()
		r.markDone()
	}
}

func (r *Registry) send(cmd registryCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Registry) markDone() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Registry) run() {
	defer r.markDone()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Session registry panic recovered", "panic", p)
			r.closeAll("internal error")
		}
	}()

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			r.handleRegister(c)
		case unregisterCmd:
			r.handleUnregister(c)
		case countCmd:
			c.reply <- len(r.sessions)
		case stopCmd:
			slog.Info("Session registry shutting down", "sessions", len(r.sessions))
			r.closeAll(shutdownReason)
			return
		default:
			slog.Warn("Session registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (r *Registry) handleRegister(c registerCmd) {
	if existing, exists := r.sessions[c.sessionID]; exists {
		slog.Warn("Rejecting session: id already live", "session_id", c.sessionID)
		metrics.WebSocketConnectionsRejected.WithLabelValues("duplicate_session").Inc()
		// The live session owns writes on its own connection.
		if existing.connection != c.connection {
			r.reject(c.connection, websocket.ClosePolicyViolation, "duplicate session")
		}
		c.reply <- registerReply{err: domain.ErrSessionExists}
		return
	}

	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		slog.Warn("Rejecting session: max sessions reached", "session_id", c.sessionID, "max_sessions", r.maxSessions)
		metrics.WebSocketConnectionsRejected.WithLabelValues("max_sessions").Inc()
		r.reject(c.connection, websocket.CloseTryAgainLater, "too many sessions")
		c.reply <- registerReply{err: domain.ErrTooManySessions}
		return
	}

	s := newSession(c.sessionID, c.connection, r.hub.Subscribe(), r.encoder, r.clock)
	r.sessions[c.sessionID] = s
	metrics.WebSocketSessionsCurrent.Set(float64(len(r.sessions)))

	slog.Debug("Session registered", "session_id", c.sessionID, "connection_id", s.connID, "total_sessions", len(r.sessions))
	c.reply <- registerReply{session: s}
}

func (r *Registry) reject(conn *websocket.Conn, code int, reason string) {
	_ = conn.SetWriteDeadline(r.clock.Now().Add(writeDeadline))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}

func (r *Registry) handleUnregister(c unregisterCmd) {
	current, exists := r.sessions[c.session.id]
	if !exists || current != c.session {
		return
	}
	delete(r.sessions, c.session.id)

	metrics.WebSocketSessionsCurrent.Set(float64(len(r.sessions)))
	metrics.WebSocketConnectionDuration.Observe(r.clock.Since(c.session.connectedAt).Seconds())

	slog.Debug("Session unregistered",
		"session_id", c.session.id,
		"connection_id", c.session.connID,
		"dropped", c.session.Dropped(),
		"remaining_sessions", len(r.sessions),
	)
}

// closeAll stops every session concurrently.
func (r *Registry) closeAll(reason string) {
	var wg sync.WaitGroup
	for id, s := range r.sessions {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stopGraceful(reason)
		}()
		delete(r.sessions, id)
	}
	wg.Wait()
	metrics.WebSocketSessionsCurrent.Set(0)
}
