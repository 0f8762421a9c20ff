package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/btylerw/ChatterBox/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chats (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		is_group BOOLEAN DEFAULT false,
		created_at TIMESTAMPTZ DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chat_memberships (
		chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_user ON chat_memberships(user_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, created_at
	`, username, passwordHash).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByUsername retrieves a user and their password hash.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, string, error) {
	user := &models.User{}
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &hash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return user, hash, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUsersByIDs retrieves users for the given ids.
func (s *PostgresStore) GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, created_at FROM users WHERE id = ANY($1) ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgUsers(rows)
}

// SearchUsers finds users whose username contains the query.
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, created_at FROM users
		WHERE username ILIKE $1 ORDER BY username LIMIT $2
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPgUsers(rows)
}

// CreateChat creates a chat and its memberships in one transaction.
func (s *PostgresStore) CreateChat(ctx context.Context, name string, isGroup bool, memberIDs []int64) (*models.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var chatID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (name, is_group) VALUES ($1, $2) RETURNING id
	`, name, isGroup).Scan(&chatID)
	if err != nil {
		return nil, err
	}

	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_memberships (chat_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, chatID, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetChat(ctx, chatID)
}

// AddChatMembers adds users to an existing chat.
func (s *PostgresStore) AddChatMembers(ctx context.Context, chatID int64, memberIDs []int64) (*models.Chat, error) {
	for _, userID := range memberIDs {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO chat_memberships (chat_id, user_id)
			VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, chatID, userID); err != nil {
			return nil, err
		}
	}
	return s.GetChat(ctx, chatID)
}

// GetChat retrieves a chat with its member ids.
func (s *PostgresStore) GetChat(ctx context.Context, chatID int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_at,
		       COALESCE(array_agg(m.user_id ORDER BY m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}')
		FROM chats c
		LEFT JOIN chat_memberships m ON m.chat_id = c.id
		WHERE c.id = $1
		GROUP BY c.id
	`, chatID).Scan(&chat.ID, &chat.Name, &chat.IsGroup, &chat.CreatedAt, &chat.MemberIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return chat, nil
}

// ListChatsForUser returns the chats a user belongs to.
func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_at,
		       COALESCE(array_agg(m.user_id ORDER BY m.user_id), '{}')
		FROM chats c
		JOIN chat_memberships m ON m.chat_id = c.id
		WHERE c.id IN (SELECT chat_id FROM chat_memberships WHERE user_id = $1)
		GROUP BY c.id
		ORDER BY c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.Name, &chat.IsGroup, &chat.CreatedAt, &chat.MemberIDs); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// IsChatMember reports whether the user belongs to the chat.
func (s *PostgresStore) IsChatMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM chat_memberships WHERE chat_id = $1 AND user_id = $2)
	`, chatID, userID).Scan(&exists)
	return exists, err
}

func scanPgUsers(rows pgx.Rows) ([]models.User, error) {
	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
