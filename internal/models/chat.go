package models

import "time"

// Chat represents a chat room and its membership. The member set is
// owned by the server; clients hold references by id only.
type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"is_group"`
	MemberIDs []int64   `json:"members"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
