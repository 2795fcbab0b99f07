package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/otpchat/internal/db"
	"github.com/wuwenbin0122/otpchat/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat: chat not found")
	ErrNotOwner     = errors.New("chat: caller does not own this chat")
)

// Store is the slice of the persistence layer used by the chat service.
type Store interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	FindChat(ctx context.Context, id string) (*models.Chat, error)
	ListChatsByOwner(ctx context.Context, userID string) ([]models.Chat, error)
	SetChatLatestMessage(ctx context.Context, id, message string) (*models.Chat, error)
	DeleteChat(ctx context.Context, id string) error
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversationsByChat(ctx context.Context, chatID string) ([]models.Conversation, error)
}

// Turn is the result of appending a question/answer pair to a chat.
type Turn struct {
	Conversation models.Conversation
	Chat         models.Chat
}

type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("chat"), now: time.Now}
}

// WithClock returns a copy of s that stamps records using now.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

func (s *Service) Create(ctx context.Context, ownerID string) (*models.Chat, error) {
	chat := &models.Chat{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("chat: create: %w", err)
	}

	s.logger.Debug("chat created", zap.String("chat_id", chat.ID), zap.String("user_id", ownerID))
	return chat, nil
}

// List returns the owner's chats, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]models.Chat, error) {
	chats, err := s.store.ListChatsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("chat: list: %w", err)
	}
	return chats, nil
}

// AddConversation appends a turn and moves the chat's latest message to the
// question. The two writes are not atomic; a failure after the first leaves
// the conversation stored with a stale latest message.
func (s *Service) AddConversation(ctx context.Context, chatID, question, answer string) (*Turn, error) {
	if _, err := s.store.FindChat(ctx, chatID); err != nil {
		return nil, translate(err, "find")
	}

	conv := models.Conversation{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Question:  question,
		Answer:    answer,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, &conv); err != nil {
		return nil, fmt.Errorf("chat: add conversation: %w", err)
	}

	updated, err := s.store.SetChatLatestMessage(ctx, chatID, question)
	if err != nil {
		s.logger.Warn("conversation stored but latest message not updated",
			zap.String("chat_id", chatID), zap.String("conversation_id", conv.ID), zap.Error(err))
		return nil, translate(err, "update latest message")
	}

	return &Turn{Conversation: conv, Chat: *updated}, nil
}

// Conversations lists every turn of chatID, oldest first. An unknown chat
// yields an empty list.
func (s *Service) Conversations(ctx context.Context, chatID string) ([]models.Conversation, error) {
	conversations, err := s.store.ListConversationsByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	return conversations, nil
}

// Delete removes the chat if callerID owns it. Its conversations are kept.
func (s *Service) Delete(ctx context.Context, chatID, callerID string) error {
	chat, err := s.store.FindChat(ctx, chatID)
	if err != nil {
		return translate(err, "find")
	}
	if chat.UserID != callerID {
		return ErrNotOwner
	}

	if err := s.store.DeleteChat(ctx, chatID); err != nil {
		return translate(err, "delete")
	}

	s.logger.Debug("chat deleted", zap.String("chat_id", chatID), zap.String("user_id", callerID))
	return nil
}

func translate(err error, op string) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrChatNotFound
	}
	return fmt.Errorf("chat: %s: %w", op, err)
}
