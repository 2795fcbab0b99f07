package models

import "time"

// Chat is a thread owned by a single user. LatestMessage mirrors the question of
// the most recently appended conversation turn.
type Chat struct {
	ID            string    `json:"id" bson:"_id"`
	UserID        string    `json:"userId" bson:"user_id"`
	LatestMessage string    `json:"latestMessage,omitempty" bson:"latest_message,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"created_at"`
}
