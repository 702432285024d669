package handler

import (
	"encoding/json"

	"procsight/internal/pkg/logger"
	"procsight/internal/service"
	internalWS "procsight/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// MessageSnapshot is the first frame a new stream client receives.
const MessageSnapshot = "snapshot"

type StreamHandler struct {
	telemetry service.ITelemetryService
	hub       *internalWS.Hub
	logger    logger.ILogger
}

func NewStreamHandler(telemetry service.ITelemetryService, hub *internalWS.Hub, log logger.ILogger) *StreamHandler {
	return &StreamHandler{
		telemetry: telemetry,
		hub:       hub,
		logger:    log,
	}
}

func (h *StreamHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/ws/telemetry", h.ServeWs)
}

// ServeWs upgrades the request and streams every telemetry publish to the peer.
func (h *StreamHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// The fiber ctx must not be touched once the connection is hijacked.
	initial, err := json.Marshal(map[string]interface{}{
		"type": MessageSnapshot,
		"data": h.telemetry.GetRollingLog(c.UserContext()),
	})
	if err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		remote := conn.RemoteAddr().String()
		h.logger.Info("StreamHandler", "Starting telemetry stream", map[string]interface{}{"remote": remote})

		if err := conn.WriteMessage(websocket.TextMessage, initial); err != nil {
			h.logger.Warn("StreamHandler", "Initial frame failed", map[string]interface{}{"error": err.Error()})
			return
		}

		internalWS.ServeWs(h.hub, conn)
		h.logger.Info("StreamHandler", "Telemetry stream ended", map[string]interface{}{"remote": remote})
	})(c)
}
