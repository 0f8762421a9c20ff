package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/btylerw/ChatterBox/internal/hub"
	"github.com/btylerw/ChatterBox/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db        store.DataStore
	hub       *hub.Hub
	broker    store.Broker
	jwtSecret []byte
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, h *hub.Hub, broker store.Broker, jwtSecret string) *Handler {
	return &Handler{db: db, hub: h, broker: broker, jwtSecret: []byte(jwtSecret)}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits a name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidUsername accepts 3-32 character names of letters, digits,
// underscores and hyphens.
func isValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 32 {
		return false
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}
