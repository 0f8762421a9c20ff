package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/btylerw/ChatterBox/internal/api/middleware"
	"github.com/btylerw/ChatterBox/internal/metrics"
	"github.com/btylerw/ChatterBox/internal/store"
)

// CreateChatRequest is the request body for creating a chat.
type CreateChatRequest struct {
	Name    string  `json:"name"`
	IsGroup bool    `json:"is_group"`
	UserIDs []int64 `json:"user_ids"`
}

// UpdateChatRequest is the request body for adding members to a chat.
type UpdateChatRequest struct {
	ChatID  int64   `json:"chat_id"`
	UserIDs []int64 `json:"user_ids"`
}

// ListChats returns the chats the authenticated user belongs to.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chats, err := h.db.ListChatsForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, chats)
}

// CreateChat creates a chat. The creator is always a member, whether or
// not the request lists them.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	members := req.UserIDs
	creatorIncluded := false
	for _, id := range members {
		if id == user.ID {
			creatorIncluded = true
			break
		}
	}
	if !creatorIncluded {
		members = append(members, user.ID)
	}

	chat, err := h.db.CreateChat(r.Context(), name, req.IsGroup, members)
	if err != nil {
		h.Error(w, http.StatusConflict, "error creating new chat")
		return
	}

	metrics.ChatsCreated.Inc()
	h.JSON(w, http.StatusCreated, chat)
}

// UpdateChat adds members to a chat the requester belongs to.
func (h *Handler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.UserIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "user_ids is required")
		return
	}

	member, err := h.db.IsChatMember(r.Context(), req.ChatID, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !member {
		h.Error(w, http.StatusForbidden, "not a member of this chat")
		return
	}

	chat, err := h.db.AddChatMembers(r.Context(), req.ChatID, req.UserIDs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "chat not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, chat)
}
