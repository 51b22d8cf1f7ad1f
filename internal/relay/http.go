package relay

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohamedalib2001/infera-webnova-sub020/internal/session"
	"github.com/mohamedalib2001/infera-webnova-sub020/internal/store"
)

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				s.logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.logger.Debug("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET(session.EndpointPath, s.HandleWebSocket)
	e.GET("/health", s.handleHealth)
	e.GET("/v1/sessions/:session_id/turns", s.handleListTurns)
	return e
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": s.hub.ConnectionCount(),
		"sessions":    s.hub.SessionCount(),
	})
}

// TurnsResponse is the body of GET /v1/sessions/:session_id/turns.
type TurnsResponse struct {
	SessionID string       `json:"session_id"`
	Turns     []store.Turn `json:"turns"`
}

func (s *Server) handleListTurns(c echo.Context) error {
	sessionID := c.Param("session_id")

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
		}
		limit = n
	}

	ctx := c.Request().Context()
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return err
	}

	turns, err := s.store.ListTurns(ctx, sessionID, limit)
	if err != nil {
		return err
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	return c.JSON(http.StatusOK, TurnsResponse{SessionID: sessionID, Turns: turns})
}
