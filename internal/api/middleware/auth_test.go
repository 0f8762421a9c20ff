package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/btylerw/ChatterBox/internal/models"
	"github.com/btylerw/ChatterBox/internal/store"
)

// userStore backs RequireAuth with a fixed set of users. Everything else
// is unused by the middleware.
type userStore struct {
	users map[int64]*models.User
}

func (s *userStore) Close()                     {}
func (s *userStore) Ping(context.Context) error { return nil }

func (s *userStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (s *userStore) CreateUser(context.Context, string, string) (*models.User, error) {
	return nil, store.ErrNotFound
}
func (s *userStore) GetUserByUsername(context.Context, string) (*models.User, string, error) {
	return nil, "", store.ErrNotFound
}
func (s *userStore) GetUsersByIDs(context.Context, []int64) ([]models.User, error) { return nil, nil }
func (s *userStore) SearchUsers(context.Context, string, int) ([]models.User, error) {
	return nil, nil
}
func (s *userStore) CreateChat(context.Context, string, bool, []int64) (*models.Chat, error) {
	return nil, store.ErrNotFound
}
func (s *userStore) AddChatMembers(context.Context, int64, []int64) (*models.Chat, error) {
	return nil, store.ErrNotFound
}
func (s *userStore) GetChat(context.Context, int64) (*models.Chat, error) {
	return nil, store.ErrNotFound
}
func (s *userStore) ListChatsForUser(context.Context, int64) ([]models.Chat, error) {
	return nil, nil
}
func (s *userStore) IsChatMember(context.Context, int64, int64) (bool, error) { return false, nil }

func signToken(t *testing.T, secret string, userID int64) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestRequireAuth(t *testing.T) {
	db := &userStore{users: map[int64]*models.User{
		7: {ID: 7, Username: "alice"},
	}}
	m := NewAuthMiddleware(db, "test-secret")

	var gotUser *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + signToken(t, "test-secret", 7), http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", 7), http.StatusUnauthorized},
		{"deleted account", "Bearer " + signToken(t, "test-secret", 8), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotUser = nil
			req := httptest.NewRequest("GET", "/chat/list", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			m.RequireAuth(next).ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusNoContent {
				if gotUser == nil || gotUser.ID != 7 {
					t.Fatalf("context user = %+v, want id 7", gotUser)
				}
			} else if gotUser != nil {
				t.Fatal("handler ran despite rejected auth")
			}
		})
	}
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	db := &userStore{users: map[int64]*models.User{7: {ID: 7, Username: "alice"}}}
	m := NewAuthMiddleware(db, "test-secret")

	claims := jwt.MapClaims{
		"sub": "7",
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/chat/list", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	m.RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler ran with expired token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
