package store

import (
	"context"
	"errors"

	"github.com/btylerw/ChatterBox/internal/models"
)

// ErrNotFound reports a missing user or chat.
var ErrNotFound = errors.New("not found")

// DataStore defines the interface for persistent storage of users and
// chats. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, string, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)

	// Chat operations
	CreateChat(ctx context.Context, name string, isGroup bool, memberIDs []int64) (*models.Chat, error)
	AddChatMembers(ctx context.Context, chatID int64, memberIDs []int64) (*models.Chat, error)
	GetChat(ctx context.Context, chatID int64) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error)
	IsChatMember(ctx context.Context, chatID, userID int64) (bool, error)
}
