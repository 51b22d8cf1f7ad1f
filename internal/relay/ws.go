package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jellydator/ttlcache/v3"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
)

// HandleWebSocket upgrades the request and runs the connection.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}

	conn := s.hub.NewConnection(ws)
	if !s.hub.Register(conn) {
		ws.Close()
		return nil
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)

	s.send(conn, protocol.ConnectedMessage{
		Type:         protocol.TypeConnected,
		ConnectionID: conn.ID,
		Timestamp:    time.Now().UnixMilli(),
	})

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		// Any frame proves the peer is alive.
		conn.Conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.handleMessage(conn, message)
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message := <-conn.send:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("websocket write failed", zap.String("connection_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.ctx.Done():
			conn.Conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
			return
		}
	}
}

// handleMessage dispatches one client frame. Authentication runs inline so
// the session is bound before the next frame is read. Chat and code run in
// their own goroutines.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch env.Type {
	case protocol.TypeAuthRequest:
		var msg protocol.AuthRequestMessage
		if s.decode(conn, data, &msg) {
			s.handleAuth(conn, msg)
		}
	case protocol.TypeChatRequest:
		var msg protocol.ChatRequestMessage
		if s.decode(conn, data, &msg) && s.requireSession(conn, msg.RequestID) {
			go s.handleChat(conn, msg)
		}
	case protocol.TypeCodeExecute:
		var msg protocol.CodeExecuteMessage
		if s.decode(conn, data, &msg) && s.requireSession(conn, msg.RequestID) {
			go s.handleCode(conn, msg)
		}
	case protocol.TypePing:
		s.send(conn, protocol.NewHeartbeat(protocol.TypePong, time.Now()))
	case protocol.TypePong:
	default:
		s.sendError(conn, env.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+env.Type)
	}
}

func (s *Server) decode(conn *Connection, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		env, _ := protocol.Decode(data)
		s.sendError(conn, env.RequestID, protocol.ErrorCodeInvalidMessage, "invalid "+env.Type+" message")
		return false
	}
	return true
}

func (s *Server) requireSession(conn *Connection, requestID string) bool {
	if conn.SessionID() != "" {
		return true
	}
	s.sendError(conn, requestID, protocol.ErrorCodeUnauthorized, "send auth_request first")
	return false
}

// handleAuth binds the connection to the session behind the token. A token
// seen within the session TTL resumes its session.
func (s *Server) handleAuth(conn *Connection, msg protocol.AuthRequestMessage) {
	if msg.SessionToken == "" {
		s.send(conn, protocol.AuthFailedMessage{Type: protocol.TypeAuthFailed, Error: "missing session token"})
		return
	}

	var sessionID string
	if item := s.tokens.Get(msg.SessionToken); item != nil {
		sessionID = item.Value()
	} else {
		sessionID = "sess_" + uuid.New().String()[:8]
		s.tokens.Set(msg.SessionToken, sessionID, ttlcache.DefaultTTL)
	}

	ctx, cancel := context.WithTimeout(conn.Context(), s.cfg.WriteTimeout)
	defer cancel()
	if _, err := s.store.GetOrCreateSession(ctx, sessionID); err != nil {
		s.logger.Error("failed to create session", zap.String("session_id", sessionID), zap.Error(err))
		s.send(conn, protocol.AuthFailedMessage{Type: protocol.TypeAuthFailed, Error: "session store unavailable"})
		return
	}

	s.hub.BindSession(conn, sessionID)
	s.send(conn, protocol.AuthSuccessMessage{Type: protocol.TypeAuthSuccess, SessionID: sessionID})
	s.logger.Info("session authenticated", zap.String("connection_id", conn.ID), zap.String("session_id", sessionID))
}

// send marshals v and queues it on conn.
func (s *Server) send(conn *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(conn.Context(), s.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Send(ctx, data); err != nil {
		s.logger.Debug("dropped message", zap.String("connection_id", conn.ID), zap.Error(err))
	}
}
