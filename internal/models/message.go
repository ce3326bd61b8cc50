package models

import "time"

// Message is an append-only row. AuthorName and AuthorAvatar are joined
// from the author's profile when reading history or emitting feed events.
type Message struct {
	ID           string    `json:"id"`
	ProfileID    string    `json:"profile_id"`
	Text         string    `json:"text"`
	AuthorName   string    `json:"author_name,omitempty"`
	AuthorAvatar *string   `json:"author_avatar,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
