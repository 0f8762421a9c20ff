// Package directory holds the client-side collaborators the realtime
// session depends on: the chat directory, the user directory and the
// authentication context. All three are served by the ChatterBox REST
// API; the session code only sees these interfaces.
package directory

import (
	"context"

	"github.com/btylerw/ChatterBox/internal/models"
)

// ChatDirectory lists the rooms a user can select from. Consulted at
// login and again after any membership mutation.
type ChatDirectory interface {
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.Chat, error)
}

// UserDirectory resolves member ids to display identities.
type UserDirectory interface {
	ResolveUsers(ctx context.Context, ids []int64) ([]models.User, error)
}

// AuthContext supplies the current identity and the logout hook the
// session manager calls into on teardown.
type AuthContext interface {
	Identity() (models.User, bool)
	Logout()
}
