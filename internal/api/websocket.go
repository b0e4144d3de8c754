package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/identity"
	"github.com/calmline/calmline/internal/orchestrator"
	"github.com/coder/websocket"
)

// WebSocketHandler serves a live counseling chat over a WebSocket. Each
// connection is bound to the user's open session; turns flow through
// the same lifecycle as the REST endpoint.
type WebSocketHandler struct {
	orch          *orchestrator.Orchestrator
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new chat WebSocket handler.
func NewWebSocketHandler(orch *orchestrator.Orchestrator, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{orch: orch, allowedOrigin: allowedOrigin, isDev: isDev}
}

// wsMessage is an inbound chat frame.
type wsMessage struct {
	Type                  string `json:"type"`
	Message               string `json:"message,omitempty"`
	ActiveDurationSeconds *int   `json:"active_duration_seconds,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	slog.Info("chat socket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept chat socket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("failed to close chat socket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := h.orch.ActiveSession(ctx, userID)
	if err != nil {
		slog.Error("chat socket session lookup failed", "error", err, "user_id", userID)
		h.writeJSON(ws, map[string]string{"type": "error", "error": "session_lookup_failed"})
		return
	}
	if sess == nil {
		h.writeJSON(ws, map[string]string{"type": "error", "error": "no_active_session"})
		return
	}

	h.writeJSON(ws, map[string]interface{}{"type": "session", "session_id": sess.ID})
	h.chatLoop(ctx, ws, userID, sess.ID)
	slog.Info("chat socket closed", "user_id", userID, "session_id", sess.ID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("chat socket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) chatLoop(ctx context.Context, ws *websocket.Conn, userID string, sessionID int64) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("chat socket closed by client", "user_id", userID)
			} else {
				slog.Warn("chat socket read error", "error", err, "user_id", userID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Treat raw text as a message frame.
			msg = wsMessage{Type: "message", Message: string(raw)}
		}

		switch msg.Type {
		case "message":
			result, err := h.orch.PostTurn(ctx, userID, sessionID, msg.Message, msg.ActiveDurationSeconds)
			if err != nil {
				h.writeJSON(ws, map[string]string{"type": "error", "error": err.Error()})
				if domain.IsConflict(err) || domain.IsNotFound(err) {
					// Session closed underneath us.
					return
				}
				continue
			}
			h.writeJSON(ws, map[string]interface{}{
				"type":          "reply",
				"reply":         result.Reply,
				"fallback":      result.Fallback,
				"should_remind": result.ShouldRemind,
			})
		case "ping":
			h.writeJSON(ws, map[string]string{"type": "pong"})
		default:
			h.writeJSON(ws, map[string]string{"type": "error", "error": "unknown_frame_type"})
		}
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Debug("chat socket marshal failed", "error", err)
		return
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("chat socket write failed", "error", err)
	}
}
