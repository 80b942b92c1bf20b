package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/assistant"
	"github.com/slaurent/cliniquerdv/services/clinic-api/internal/model"
)

// ChatStore persists assistant conversation transcripts.
type ChatStore interface {
	InsertChatMessage(ctx context.Context, msg model.ChatMessage) (int64, error)
	ChatHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
}

type ChatHandler struct {
	responder *assistant.Responder
	store     ChatStore
	logger    *slog.Logger
}

func NewChatHandler(responder *assistant.Responder, store ChatStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{responder: responder, store: store, logger: logger}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *ChatHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidBody", "invalid json body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "MissingFields", "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply, intent, err := h.responder.Reply(r.Context(), req.Message)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}

	// Transcript persistence is best effort; a storage hiccup should not
	// break the conversation.
	ctx := r.Context()
	if _, err := h.store.InsertChatMessage(ctx, model.ChatMessage{SessionID: req.SessionID, Role: "user", Content: req.Message}); err != nil {
		h.logger.WarnContext(ctx, "chat message not persisted", "session_id", req.SessionID, "err", err)
	}
	if _, err := h.store.InsertChatMessage(ctx, model.ChatMessage{SessionID: req.SessionID, Role: "assistant", Content: reply}); err != nil {
		h.logger.WarnContext(ctx, "chat reply not persisted", "session_id", req.SessionID, "err", err)
	}

	writeJSON(w, http.StatusOK, envelope{
		"success":    true,
		"session_id": req.SessionID,
		"intent":     string(intent),
		"reply":      reply,
	})
}

type chatMessageItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	SentAt  string `json:"sent_at"`
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	msgs, err := h.store.ChatHistory(r.Context(), sessionID)
	if err != nil {
		writeBookingError(w, h.logger, r, err)
		return
	}
	items := make([]chatMessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, chatMessageItem{
			Role:    m.Role,
			Content: m.Content,
			SentAt:  m.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "session_id": sessionID, "messages": items})
}
