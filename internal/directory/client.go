package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/btylerw/ChatterBox/internal/models"
)

// Client talks to the ChatterBox REST API. It implements ChatDirectory,
// UserDirectory and AuthContext for the session layer.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.Mutex
	token string
	user  *models.User
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs an HTTP request, attaching the bearer token when
// one is held.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chatterbox error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// CredentialsRequest is the body for login and account creation.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and account creation.
type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates a new account and signs in as it.
func (c *Client) Register(ctx context.Context, username, password string) (models.User, error) {
	return c.authenticate(ctx, "/auth/create-account", username, password)
}

// Login signs in with existing credentials.
func (c *Client) Login(ctx context.Context, username, password string) (models.User, error) {
	return c.authenticate(ctx, "/auth/login", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) (models.User, error) {
	body, _ := json.Marshal(CredentialsRequest{Username: username, Password: password})
	respBody, err := c.doRequest(ctx, "POST", path, body)
	if err != nil {
		return models.User{}, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.user = &resp.User
	c.mu.Unlock()
	return resp.User, nil
}

// Identity returns the signed-in user, if any.
func (c *Client) Identity() (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return models.User{}, false
	}
	return *c.user, true
}

// Logout drops the held credentials.
func (c *Client) Logout() {
	c.mu.Lock()
	c.token = ""
	c.user = nil
	c.mu.Unlock()
}

// ListRoomsForUser returns the chats the signed-in user belongs to. The
// server derives membership from the bearer token; userID is accepted
// to satisfy ChatDirectory.
func (c *Client) ListRoomsForUser(ctx context.Context, _ int64) ([]models.Chat, error) {
	respBody, err := c.doRequest(ctx, "GET", "/chat/list", nil)
	if err != nil {
		return nil, err
	}

	var chats []models.Chat
	if err := json.Unmarshal(respBody, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChatRequest is the body for creating a chat.
type CreateChatRequest struct {
	Name    string  `json:"name"`
	IsGroup bool    `json:"is_group"`
	UserIDs []int64 `json:"user_ids"`
}

// CreateChat creates a chat with the given members.
func (c *Client) CreateChat(ctx context.Context, name string, isGroup bool, userIDs []int64) (*models.Chat, error) {
	body, _ := json.Marshal(CreateChatRequest{Name: name, IsGroup: isGroup, UserIDs: userIDs})
	respBody, err := c.doRequest(ctx, "POST", "/chat/create-chat", body)
	if err != nil {
		return nil, err
	}

	var chat models.Chat
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChatRequest is the body for adding members to a chat.
type UpdateChatRequest struct {
	ChatID  int64   `json:"chat_id"`
	UserIDs []int64 `json:"user_ids"`
}

// AddChatMembers adds users to an existing chat.
func (c *Client) AddChatMembers(ctx context.Context, chatID int64, userIDs []int64) (*models.Chat, error) {
	body, _ := json.Marshal(UpdateChatRequest{ChatID: chatID, UserIDs: userIDs})
	respBody, err := c.doRequest(ctx, "POST", "/chat/update-chat", body)
	if err != nil {
		return nil, err
	}

	var chat models.Chat
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ResolveUsers resolves member ids to users.
func (c *Client) ResolveUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	body, _ := json.Marshal(ids)
	respBody, err := c.doRequest(ctx, "POST", "/users/get_users_by_id", body)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := json.Unmarshal(respBody, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SearchUsers finds users whose username matches the query.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	respBody, err := c.doRequest(ctx, "GET", "/users/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}

	var users []models.User
	if err := json.Unmarshal(respBody, &users); err != nil {
		return nil, err
	}
	return users, nil
}
