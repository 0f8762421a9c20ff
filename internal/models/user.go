package models

import "time"

// User represents a registered account. The ID/Username pair is the
// identity every other entity references; it never changes once issued.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
