package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"

	"github.com/btylerw/ChatterBox/internal/models"
	"github.com/btylerw/ChatterBox/internal/store"
)

// fakeStore is an in-memory DataStore for handler tests.
type fakeStore struct {
	nextUserID int64
	nextChatID int64
	users      map[int64]*models.User
	hashes     map[string]string // username -> password hash
	chats      map[int64]*models.Chat
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]*models.User),
		hashes: make(map[string]string),
		chats:  make(map[int64]*models.Chat),
	}
}

func (f *fakeStore) Close()                     {}
func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreateUser(_ context.Context, username, passwordHash string) (*models.User, error) {
	f.nextUserID++
	u := &models.User{ID: f.nextUserID, Username: username}
	f.users[u.ID] = u
	f.hashes[username] = passwordHash
	return u, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*models.User, string, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, f.hashes[username], nil
		}
	}
	return nil, "", store.ErrNotFound
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetUsersByIDs(_ context.Context, ids []int64) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchUsers(_ context.Context, query string, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if strings.Contains(u.Username, query) && len(out) < limit {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateChat(_ context.Context, name string, isGroup bool, memberIDs []int64) (*models.Chat, error) {
	f.nextChatID++
	members := append([]int64(nil), memberIDs...)
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	chat := &models.Chat{ID: f.nextChatID, Name: name, IsGroup: isGroup, MemberIDs: members}
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeStore) AddChatMembers(_ context.Context, chatID int64, memberIDs []int64) (*models.Chat, error) {
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, id := range memberIDs {
		member := false
		for _, existing := range chat.MemberIDs {
			if existing == id {
				member = true
				break
			}
		}
		if !member {
			chat.MemberIDs = append(chat.MemberIDs, id)
		}
	}
	return chat, nil
}

func (f *fakeStore) GetChat(_ context.Context, chatID int64) (*models.Chat, error) {
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeStore) ListChatsForUser(_ context.Context, userID int64) ([]models.Chat, error) {
	var out []models.Chat
	for _, chat := range f.chats {
		for _, id := range chat.MemberIDs {
			if id == userID {
				out = append(out, *chat)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) IsChatMember(_ context.Context, chatID, userID int64) (bool, error) {
	chat, ok := f.chats[chatID]
	if !ok {
		return false, nil
	}
	for _, id := range chat.MemberIDs {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func newTestHandler(db store.DataStore) *Handler {
	return NewHandler(db, nil, nil, "test-secret")
}

func decodeBody(t interface{ Fatalf(string, ...interface{}) }, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
