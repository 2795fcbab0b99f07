package models

import "time"

type Conversation struct {
	ID        string    `json:"id" bson:"_id"`
	ChatID    string    `json:"chatId" bson:"chat_id"`
	Question  string    `json:"question" bson:"question"`
	Answer    string    `json:"answer" bson:"answer"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
