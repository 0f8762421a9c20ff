package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from the SPA origin; CORS is enforced on the
	// REST surface and chat access is checked per-user below.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeChat upgrades the request to a WebSocket and attaches it to the
// requested chat channel.
func (h *Handler) ServeChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	member, err := h.db.IsChatMember(r.Context(), chatID, userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if !member {
		h.Error(w, http.StatusForbidden, "not a member of this chat")
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}

	// Serve blocks for the life of the connection and closes the socket
	// on the way out.
	h.hub.Serve(r.Context(), sock, chatID, userID)
}
