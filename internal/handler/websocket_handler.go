// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"fprint-service/internal/model"
	"fprint-service/internal/service"
	"fprint-service/internal/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler streams service events to WebSocket clients
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	connections   *ConnectionManager
	deviceService *service.DeviceService
	eventBus      *EventBus
	logger        *utils.ServiceLogger

	subscription uuid.UUID
	events       <-chan model.Event
}

// NewWebSocketHandler creates a new WebSocket handler. Origins outside
// allowedOrigins are refused; an empty list or "*" allows every origin.
// The handler subscribes to eventBus immediately; Run delivers the events.
func NewWebSocketHandler(
	eventBus *EventBus,
	deviceService *service.DeviceService,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	allowAll := len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, "*")
	subscription, events := eventBus.Subscribe()

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || lo.Contains(allowedOrigins, origin)
			},
		},
		connections:   NewConnectionManager(),
		deviceService: deviceService,
		eventBus:      eventBus,
		logger:        utils.NewServiceLogger(logger, "websocket-handler"),
		subscription:  subscription,
		events:        events,
	}
}

// Run forwards bus events to the connected clients until ctx is done
func (h *WebSocketHandler) Run(ctx context.Context) {
	defer h.eventBus.Unsubscribe(h.subscription)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-h.events:
			if !ok {
				return
			}
			h.BroadcastEvent(event)
		}
	}
}

// HandleEventConnection upgrades to the event stream
// @Summary Event stream
// @Description Upgrade to a WebSocket that receives service events. With session set only events of that session and global events are sent.
// @Tags Events
// @Param session query string false "Session ID filter"
// @Success 101 "Switching protocols"
// @Failure 400 {object} utils.APIResponse "Invalid session ID"
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	var sessionFilter *string
	if raw := c.Query("session"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid session ID", err)
			return
		}
		s := id.String()
		sessionFilter = &s
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		SessionID:   sessionFilter,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type: "connected",
		Data: map[string]interface{}{
			"client_id": client.ID,
			"sessions":  h.deviceService.List(),
		},
		Timestamp: time.Now(),
		RequestID: utils.GetRequestID(c),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// GetConnectionStats reports the connected clients
// @Summary WebSocket statistics
// @Tags Events
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats} "Statistics retrieved successfully"
// @Router /ws/stats [get]
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved successfully", h.connections.GetStats())
}

func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("Event WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error", zap.Error(err), zap.String("client_id", client.ID))
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}
		h.handleClientMessage(client, &message)
	}
}

func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error", zap.Error(err), zap.String("client_id", client.ID))
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		data, _ := message.Data.(map[string]interface{})
		eventType, _ := data["event_type"].(string)
		if eventType == "" {
			h.sendError(client, "event_type is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(model.EventType(eventType))
		} else {
			client.Unsubscribe(model.EventType(eventType))
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "d",
			Data:      map[string]interface{}{"event_type": eventType},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	default:
		h.logger.Warn("Unknown message type", zap.String("type", message.Type), zap.String("client_id", client.ID))
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message", zap.String("client_id", client.ID))
	}
}

func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// BroadcastEvent sends event to every client whose filters accept it
func (h *WebSocketHandler) BroadcastEvent(event model.Event) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.connections.Each(func(client *Client) {
		if !client.Wants(event) {
			return
		}
		select {
		case client.Send <- messageBytes:
		default:
			h.logger.Warn("Client send channel full during broadcast", zap.String("client_id", client.ID))
		}
	})
}
