package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/pagehost"
)

const writeWait = 10 * time.Second

// Outbound WebSocket message types.
const (
	messageMounted = "mounted"
	messageAck     = "ack"
	messageError   = "error"
)

type outbound struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	Signal    pagehost.SignalType `json:"signal,omitempty"`
	Accepted  *bool               `json:"accepted,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(s.opts.AllowedOrigins) == 0 {
		return u
	}
	allowed := make(map[string]bool, len(s.opts.AllowedOrigins))
	for _, o := range s.opts.AllowedOrigins {
		allowed[o] = true
	}
	u.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
	return u
}

// streamSession mounts a session for the lifetime of one WebSocket. The
// subject and initial geometry come from the query string, every inbound
// frame is one Signal, and closing the socket tears the session down. While
// the socket is open the page is attached and exempt from idle reaping;
// pings detect peers that vanished without a close frame.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	req, err := mountFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	geometry := req.geometry()
	if err := pagehost.ValidateGeometry(geometry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Debug("websocket close failed", zap.Error(closeErr))
		}
	}()

	page, err := s.sessions.Mount(req.subject(), "ws", geometry)
	if err != nil {
		s.logger.Warn("websocket mount failed", zap.Error(err))
		if err := writeFrame(conn, outbound{Type: messageError, Error: "mount failed"}); err != nil {
			s.logger.Debug("websocket write failed", zap.Error(err))
		}
		return
	}
	logger := s.logger.With(zap.String("session_id", page.ID()))
	defer func() {
		if _, err := s.sessions.Teardown(page.ID(), pagehost.ReasonDisconnect); err != nil && !errors.Is(err, pagehost.ErrSessionNotFound) {
			logger.Warn("websocket teardown failed", zap.Error(err))
		}
	}()

	detach := page.Attach()
	defer detach()

	pongWait := 2 * s.opts.PingInterval
	conn.SetReadLimit(s.opts.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Debug("websocket read deadline failed", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		page.Touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	stopPings := make(chan struct{})
	defer close(stopPings)
	go s.keepAlive(conn, stopPings, logger)

	if err := writeFrame(conn, outbound{Type: messageMounted, SessionID: page.ID()}); err != nil {
		logger.Debug("websocket write failed", zap.Error(err))
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Debug("websocket read deadline failed", zap.Error(err))
			return
		}
		reply, keep := s.handleFrame(page.ID(), data)
		if err := writeFrame(conn, reply); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return
		}
		if !keep {
			return
		}
	}
}

// keepAlive pings the peer every PingInterval until stop is closed or a ping
// cannot be written. WriteControl may run alongside the reader's writes.
func (s *Server) keepAlive(conn *websocket.Conn, stop <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, msg outbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// handleFrame applies one inbound frame. keep is false once the session is
// gone, for example after the idle reaper or a REST teardown removed it.
func (s *Server) handleFrame(sessionID string, data []byte) (reply outbound, keep bool) {
	var sig pagehost.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return outbound{Type: messageError, Error: "invalid JSON"}, true
	}
	accepted, err := s.sessions.Deliver(sessionID, sig)
	switch {
	case errors.Is(err, pagehost.ErrSessionNotFound):
		return outbound{Type: messageError, Error: "session not found"}, false
	case err != nil:
		return outbound{Type: messageError, Signal: sig.Type, Error: err.Error()}, true
	}
	return outbound{Type: messageAck, Signal: sig.Type, Accepted: &accepted}, true
}

func mountFromQuery(q url.Values) (mountRequest, error) {
	req := mountRequest{
		SubjectID: q.Get("subject_id"),
		Title:     q.Get("title"),
		Category:  q.Get("category"),
	}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"scroll_top", &req.ScrollTop},
		{"document_height", &req.DocumentHeight},
		{"viewport_height", &req.ViewportHeight},
	}
	for _, f := range fields {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return mountRequest{}, &queryError{field: f.name}
		}
		*f.dst = v
	}
	return req, nil
}

type queryError struct {
	field string
}

func (e *queryError) Error() string {
	return "invalid " + e.field
}
