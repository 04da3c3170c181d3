package broadcast

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/trafficpulse/internal/metrics"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	maxInboundSize = 64 << 10
	echoBufferSize = 8
)

var errSessionStopped = errors.New("session stopped")

type inboundMessage struct {
	messageType int
	data        []byte
}

// Session forwards one subscription to one websocket connection.
//
// Every write to the connection happens on the writer goroutine, including echoes of inbound
// messages and keepalive pings. The writer exits when the session is stopped, the subscription
// is closed, or a write fails; in every case the subscription is released.
type Session struct {
	id          string
	connID      uuid.UUID
	connection  *websocket.Conn
	sub         *Subscription
	encoder     Encoder
	clock       clockwork.Clock
	connectedAt time.Time

	echoChannel chan inboundMessage
	doneChannel chan struct{}
	exited      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newSession(id string, connection *websocket.Conn, sub *Subscription, encoder Encoder, clock clockwork.Clock) *Session {
	s := &Session{
		id:          id,
		connID:      uuid.New(),
		connection:  connection,
		sub:         sub,
		encoder:     encoder,
		clock:       clock,
		connectedAt: clock.Now(),
		echoChannel: make(chan inboundMessage, echoBufferSize),
		doneChannel: make(chan struct{}),
		exited:      make(chan struct{}),
	}
	s.configureReader()
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

// ConnectionID is unique per accepted connection, unlike ID which a later connection may reuse.
func (s *Session) ConnectionID() uuid.UUID { return s.connID }

// Dropped is the number of records this session missed while its queue was full.
func (s *Session) Dropped() uint64 { return s.sub.Dropped() }

// Exited is closed once the writer goroutine has returned.
func (s *Session) Exited() <-chan struct{} { return s.exited }

func (s *Session) run() {
	defer s.wg.Done()
	defer close(s.exited)
	defer s.sub.Close()

	if err := s.forward(); err != nil && !errors.Is(err, errSessionStopped) {
		slog.Debug("Session writer stopped", "session_id", s.id, "connection_id", s.connID, "error", err)
		// Unblocks the reader so the registry learns the session is gone.
		_ = s.connection.Close()
	}
}

func (s *Session) forward() error {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case record, ok := <-s.sub.C():
			if !ok {
				return errors.New("subscription closed")
			}
			data, err := s.encoder.Encode(record)
			if err != nil {
				slog.Error("Failed to encode record", "session_id", s.id, "connection_id", s.connID, "record_id", record.ID, "error", err)
				continue
			}
			start := s.clock.Now()
			if err := s.write(websocket.TextMessage, data); err != nil {
				return err
			}
			metrics.WebSocketMessageSendDuration.Observe(s.clock.Since(start).Seconds())

		case msg := <-s.echoChannel:
			if err := s.write(msg.messageType, msg.data); err != nil {
				return err
			}
			metrics.WebSocketEchoedMessagesTotal.Inc()

		case <-ticker.Chan():
			if err := s.write(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return err
			}

		case <-s.doneChannel:
			return errSessionStopped
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	_ = s.connection.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
	return s.connection.WriteMessage(messageType, data)
}

func (s *Session) configureReader() {
	s.connection.SetReadLimit(maxInboundSize)
	s.updateReadDeadline()
	s.connection.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})
}

func (s *Session) updateReadDeadline() {
	_ = s.connection.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}

// readLoop reads until the connection fails, handing every data message to the writer to
// echo. It must run on exactly one goroutine.
func (s *Session) readLoop() {
	for {
		messageType, data, err := s.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Session read failed", "session_id", s.id, "connection_id", s.connID, "error", err)
			}
			return
		}
		s.updateReadDeadline()

		select {
		case s.echoChannel <- inboundMessage{messageType: messageType, data: data}:
		case <-s.exited:
			return
		}
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.doneChannel)
		_ = s.connection.Close()
	})
	s.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing the connection.
func (s *Session) stopGraceful(reason string) {
	s.stopOnce.Do(func() {
		close(s.doneChannel)

		// The writer must be gone before we write the close frame ourselves.
		s.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.write(websocket.CloseMessage, closeMsg)
		_ = s.connection.Close()
	})
	s.wg.Wait()
}
