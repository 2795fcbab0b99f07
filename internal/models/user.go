package models

import "time"

// User is identified by email; it is created on the first login attempt for an
// unseen address and never deleted.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email" bson:"email"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
