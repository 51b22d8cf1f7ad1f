package relay

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/intent"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/store"
)

const (
	statusProcessing = "processing"
	statusExecuting  = "executing"
)

// handleChat classifies the message against the session's recent history,
// stores both turns and answers as a stream or a single response. The
// assistant turn carries the intent of the exchange it answers.
func (s *Server) handleChat(conn *Connection, msg protocol.ChatRequestMessage) {
	if strings.TrimSpace(msg.Message) == "" {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInvalidMessage, "message is required")
		return
	}

	ctx := conn.Context()
	sessionID := conn.SessionID()
	log := s.logger.With(zap.String("session_id", sessionID), zap.String("request_id", msg.RequestID))

	recent, err := s.store.ListTurns(ctx, sessionID, intent.DefaultMemoryCapacity)
	if err != nil {
		log.Error("failed to load history", zap.Error(err))
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInternalError, "")
		return
	}
	history := store.History(recent)
	kind := s.classifier.Detect(msg.Message, history)

	if err := s.store.AppendTurn(ctx, &store.Turn{
		SessionID: sessionID,
		RequestID: msg.RequestID,
		Speaker:   store.SpeakerUser,
		Text:      msg.Message,
		Intent:    kind,
	}); err != nil {
		log.Error("failed to store user turn", zap.Error(err))
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInternalError, "")
		return
	}

	s.send(conn, protocol.StatusUpdateMessage{Type: protocol.TypeStatusUpdate, RequestID: msg.RequestID, Status: statusProcessing})

	prompt := Prompt{
		SessionID: sessionID,
		Text:      msg.Message,
		Language:  msg.Context.Language,
		Intent:    kind,
		History:   history,
	}
	reply, err := s.reply(ctx, conn, msg, prompt)
	if err != nil {
		log.Error("responder failed", zap.Error(err))
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInternalError, "")
		return
	}

	if err := s.store.AppendTurn(ctx, &store.Turn{
		SessionID: sessionID,
		RequestID: msg.RequestID,
		Speaker:   store.SpeakerAssistant,
		Text:      reply,
		Intent:    kind,
	}); err != nil {
		log.Warn("failed to store assistant turn", zap.Error(err))
	}
	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		log.Warn("failed to touch session", zap.Error(err))
	}

	final := protocol.TypeChatComplete
	if !msg.Stream {
		final = protocol.TypeChatResponse
	}
	s.send(conn, protocol.ChatCompleteMessage{
		Type:      final,
		RequestID: msg.RequestID,
		Response:  reply,
		Intent:    string(kind),
	})
	log.Debug("chat answered", zap.String("intent", string(kind)))
}

// reply produces the answer, sending chat_stream deltas when the client asked
// for a stream. Responders that cannot stream are chunked after the fact.
func (s *Server) reply(ctx context.Context, conn *Connection, msg protocol.ChatRequestMessage, p Prompt) (string, error) {
	emit := func(delta string) error {
		data, err := json.Marshal(protocol.ChatStreamMessage{Type: protocol.TypeChatStream, RequestID: msg.RequestID, Delta: delta})
		if err != nil {
			return err
		}
		return conn.Send(ctx, data)
	}

	if streamer, ok := s.responder.(StreamResponder); ok && msg.Stream {
		return streamer.RespondStream(ctx, p, emit)
	}

	text, err := s.responder.Respond(ctx, p)
	if err != nil || !msg.Stream {
		return text, err
	}
	for _, delta := range chunk(text, s.cfg.StreamChunkSize) {
		if err := emit(delta); err != nil {
			return text, err
		}
	}
	return text, nil
}
