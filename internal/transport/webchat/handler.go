package webchat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/trainbot/internal/dialogue"
	"github.com/ashureev/trainbot/internal/dispatch"
	"github.com/ashureev/trainbot/internal/identity"
	"github.com/coder/websocket"
)

// Submitter queues an event for the dialogue. *dispatch.Dispatcher implements it.
type Submitter interface {
	Submit(ev dialogue.Event, to dispatch.Sender) error
}

// Handler upgrades /ws/chat requests and feeds their messages to the dispatcher.
type Handler struct {
	submitter     Submitter
	conns         *ConnectionManager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a chat WebSocket handler.
func NewHandler(submitter Submitter, conns *ConnectionManager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		submitter:     submitter,
		conns:         conns,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// inMessage is the browser-to-server frame.
type inMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	anonID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if anonID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	slog.Info("Chat connection request", "user_id", anonID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", anonID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", anonID)
		}
	}()

	h.conns.Register(anonID, sessionID, ws)
	defer h.conns.Unregister(anonID, sessionID, ws)

	h.readLoop(r.Context(), ws, anonID)
	slog.Info("Chat connection ended", "user_id", anonID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || h.allowedOrigin == "" {
		return true
	}
	if origin == strings.TrimRight(h.allowedOrigin, "/") {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, anonID string) {
	userID := UserPrefix + anonID
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg inMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeJSON(ctx, ws, outMessage{Type: "error", Content: "malformed message"})
			continue
		}

		var ev dialogue.Event
		switch msg.Type {
		case "ping":
			h.writeJSON(ctx, ws, outMessage{Type: "pong"})
			continue
		case "text":
			ev = dialogue.Event{UserID: userID, Kind: dialogue.KindText, Text: msg.Content}
		case "choice":
			c, ok := dispatch.ParseChoice(msg.Content)
			if !ok {
				h.writeJSON(ctx, ws, outMessage{Type: "error", Content: "unknown choice"})
				continue
			}
			ev = dialogue.Event{UserID: userID, Kind: dialogue.KindChoice, Choice: c}
		case "command":
			cmd := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(msg.Content), "/"))
			ev = dialogue.Event{UserID: userID, Kind: dialogue.KindCommand, Command: cmd}
		default:
			h.writeJSON(ctx, ws, outMessage{Type: "error", Content: "unknown message type"})
			continue
		}

		if err := h.submitter.Submit(ev, h.conns); err != nil {
			slog.Warn("Failed to submit chat event", "error", err, "user_id", userID)
			h.writeJSON(ctx, ws, outMessage{Type: "error", Content: "service unavailable"})
			return
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, ws *websocket.Conn, v outMessage) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("Failed to write websocket frame", "type", v.Type, "error", err)
	}
}
