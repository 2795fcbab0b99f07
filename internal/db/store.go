package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wuwenbin0122/otpchat/internal/models"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

var ErrNotFound = errors.New("db: record not found")

// Store is the persistence surface shared by the auth and chat services.
type Store interface {
	UpsertUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)

	CreateChat(ctx context.Context, chat *models.Chat) error
	FindChat(ctx context.Context, id string) (*models.Chat, error)
	ListChatsByOwner(ctx context.Context, userID string) ([]models.Chat, error)
	SetChatLatestMessage(ctx context.Context, id, message string) (*models.Chat, error)
	DeleteChat(ctx context.Context, id string) error

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversationsByChat(ctx context.Context, chatID string) ([]models.Conversation, error)

	EnsureSchema(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *utils.Config) (Store, error) {
	switch cfg.StoreDriver {
	case utils.StoreDriverMongo:
		return NewMongo(ctx, cfg.Mongo)
	case utils.StoreDriverPostgres:
		return NewPostgres(ctx, cfg.Postgres)
	case utils.StoreDriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.StoreDriver)
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
