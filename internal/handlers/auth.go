package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/btylerw/ChatterBox/internal/metrics"
	"github.com/btylerw/ChatterBox/internal/models"
	"github.com/btylerw/ChatterBox/internal/store"
)

const tokenTTL = 24 * time.Hour

// CredentialsRequest is the request body for login and account creation.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the response for successful authentication.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// CreateAccount handles new account registration.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	username := sanitizeName(req.Username)
	if !isValidUsername(username) {
		h.Error(w, http.StatusBadRequest, "username must be 3-32 letters, digits, _ or -")
		return
	}
	if len(req.Password) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if _, _, err := h.db.GetUserByUsername(r.Context(), username); err == nil {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "hashing failed")
		return
	}

	user, err := h.db.CreateUser(r.Context(), username, string(hash))
	if err != nil {
		h.Error(w, http.StatusConflict, "error creating account")
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "token issuance failed")
		return
	}

	metrics.AccountsCreated.Inc()
	h.JSON(w, http.StatusCreated, AuthResponse{Token: token, User: *user})
}

// Login handles credential verification and token issuance.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, hash, err := h.db.GetUserByUsername(r.Context(), sanitizeName(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.LoginAttempts.WithLabelValues("rejected").Inc()
			h.Error(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		metrics.LoginAttempts.WithLabelValues("rejected").Inc()
		h.Error(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "token issuance failed")
		return
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	h.JSON(w, http.StatusOK, AuthResponse{Token: token, User: *user})
}

// issueToken signs a short-lived bearer token for the user.
func (h *Handler) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(user.ID, 10),
		"username": user.Username,
		"jti":      ulid.Make().String(),
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}
