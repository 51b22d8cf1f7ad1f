package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/executor"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/policy"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/protocol"
)

// handleCode checks the snippet against the policy, runs it and replies
// with code_result. A snippet that fails still gets a code_result.
func (s *Server) handleCode(conn *Connection, msg protocol.CodeExecuteMessage) {
	sessionID := conn.SessionID()
	language := strings.ToLower(strings.TrimSpace(msg.Language))
	log := s.logger.With(zap.String("session_id", sessionID), zap.String("request_id", msg.RequestID))

	decision, err := s.policy.Evaluate(conn.Context(), policy.Input{
		SessionID:        sessionID,
		Language:         language,
		Size:             len(msg.Code),
		MaxSize:          s.cfg.MaxCodeSize,
		AllowedLanguages: s.cfg.AllowedLanguages,
	})
	if err != nil {
		log.Error("policy evaluation failed", zap.Error(err))
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeInternalError, "")
		return
	}
	if !decision.Allowed() {
		log.Info("code execution blocked", zap.String("reason", decision.Reason))
		s.sendError(conn, msg.RequestID, protocol.ErrorCodePolicyBlocked, decision.Reason)
		return
	}

	s.send(conn, protocol.StatusUpdateMessage{Type: protocol.TypeStatusUpdate, RequestID: msg.RequestID, Status: statusExecuting})

	timeout := s.cfg.CodeRunTimeout
	if requested := time.Duration(msg.Timeout) * time.Millisecond; requested > 0 && (timeout <= 0 || requested < timeout) {
		timeout = requested
	}
	ctx := conn.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := s.executor.Execute(ctx, language, msg.Code)
	if err != nil {
		log.Warn("code execution failed", zap.Error(err))
		detail := ""
		if errors.Is(err, executor.ErrUnsupportedLanguage) {
			detail = err.Error()
		}
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeExecutionFailed, detail)
		return
	}

	s.send(conn, protocol.CodeResultMessage{
		Type: protocol.TypeCodeResult,
		CodeResult: protocol.CodeResult{
			RequestID:  msg.RequestID,
			Language:   res.Language,
			Success:    res.Success,
			Output:     res.Output,
			Error:      res.Error,
			ExitCode:   res.ExitCode,
			DurationMs: res.Duration.Milliseconds(),
		},
	})
}
