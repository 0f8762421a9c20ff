// Package presence maintains the live "who is here" set for the room
// the user is currently viewing.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/btylerw/ChatterBox/internal/models"
)

// Resolver turns bare member ids into display identities. The user
// directory over HTTP implements this.
type Resolver interface {
	ResolveUsers(ctx context.Context, ids []int64) ([]models.User, error)
}

// Tracker holds the member ids currently connected to the active room.
// Membership is kept as an id set; display names are a cache layered on
// top. A resolution that finishes late can therefore never resurrect a
// member that already left — it only fills in a name.
type Tracker struct {
	resolver Resolver

	mu      sync.Mutex
	members map[int64]struct{}
	names   map[int64]string
}

// NewTracker creates an empty tracker backed by the given resolver.
func NewTracker(resolver Resolver) *Tracker {
	return &Tracker{
		resolver: resolver,
		members:  make(map[int64]struct{}),
		names:    make(map[int64]string),
	}
}

// ApplySnapshot replaces the member set wholesale.
func (t *Tracker) ApplySnapshot(ids []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		t.members[id] = struct{}{}
	}
}

// ApplyJoin unions the given ids into the member set.
func (t *Tracker) ApplyJoin(ids []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.members[id] = struct{}{}
	}
}

// ApplyLeave removes the given ids from the member set.
func (t *Tracker) ApplyLeave(ids []int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		delete(t.members, id)
	}
}

// Reset clears membership on room switch. The name cache is kept;
// usernames do not change between rooms.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = make(map[int64]struct{})
}

// Current returns the present members as resolved identities, sorted by
// id. Ids the directory cannot resolve stay in the set under a generic
// name rather than disappearing.
func (t *Tracker) Current(ctx context.Context) []models.User {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.members))
	var unknown []int64
	for id := range t.members {
		ids = append(ids, id)
		if _, ok := t.names[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	t.mu.Unlock()

	if len(unknown) > 0 && t.resolver != nil {
		if users, err := t.resolver.ResolveUsers(ctx, unknown); err == nil {
			t.mu.Lock()
			for _, u := range users {
				t.names[u.ID] = u.Username
			}
			t.mu.Unlock()
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		// Re-check membership: a leave may have landed while we were
		// resolving, and it must win.
		if _, ok := t.members[id]; !ok {
			continue
		}
		name, ok := t.names[id]
		if !ok {
			name = fmt.Sprintf("user %d", id)
		}
		users = append(users, models.User{ID: id, Username: name})
	}
	return users
}
