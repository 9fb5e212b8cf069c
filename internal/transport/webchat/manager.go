// Package webchat serves the dialogue over WebSocket to browser tabs.
package webchat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/trainbot/internal/dialogue"
	"github.com/coder/websocket"
)

// UserPrefix namespaces web chat users in the dialogue session registry.
const UserPrefix = "web:"

// conn is the part of *websocket.Conn the manager needs.
type conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// ConnectionManager tracks open chat tabs per user and fans replies out to them.
type ConnectionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]conn
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		active: make(map[string]map[string]conn),
	}
}

// Register adds a connection for a user tab, closing any connection it replaces.
func (m *ConnectionManager) Register(userID, sessionID string, c conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]conn)
	}
	if existing, exists := m.active[userID][sessionID]; exists && existing != c {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[userID][sessionID] = c
	slog.Info("Chat connection registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes c if it is still the tab's current connection.
func (m *ConnectionManager) Unregister(userID, sessionID string, c conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == c {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Connections returns the number of open tabs for userID.
func (m *ConnectionManager) Connections(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[userID])
}

// CloseAll closes every connection. Used on shutdown.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, sessions := range m.active {
		for _, c := range sessions {
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(m.active, userID)
	}
}

type choiceView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// outMessage is the server-to-browser frame.
type outMessage struct {
	Type    string       `json:"type"`
	Text    string       `json:"text,omitempty"`
	Content string       `json:"content,omitempty"`
	Choices []choiceView `json:"choices,omitempty"`
}

func replyMessage(r dialogue.Reply) outMessage {
	msg := outMessage{Type: "reply", Text: r.Text}
	for _, c := range r.Choices {
		msg.Choices = append(msg.Choices, choiceView{ID: string(c), Label: c.Label()})
	}
	return msg
}

// Send delivers reply to every open tab of the user.
func (m *ConnectionManager) Send(ctx context.Context, userID string, reply dialogue.Reply) error {
	anonID := strings.TrimPrefix(userID, UserPrefix)
	data, err := json.Marshal(replyMessage(reply))
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}

	m.mu.RLock()
	targets := make([]conn, 0, len(m.active[anonID]))
	for _, c := range m.active[anonID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		slog.Debug("No open chat tab for reply", "user_id", userID)
		return nil
	}

	var firstErr error
	for _, c := range targets {
		if err := c.Write(ctx, websocket.MessageText, data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("write reply: %w", err)
		}
	}
	return firstErr
}
