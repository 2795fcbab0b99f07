package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wuwenbin0122/otpchat/internal/models"
)

// Memory keeps every record in process. It backs the tests and STORE_DRIVER=memory.
type Memory struct {
	mu            sync.RWMutex
	usersByID     map[string]*models.User
	usersByEmail  map[string]*models.User
	chats         map[string]*models.Chat
	conversations map[string][]models.Conversation
}

func NewMemory() *Memory {
	return &Memory{
		usersByID:     make(map[string]*models.User),
		usersByEmail:  make(map[string]*models.User),
		chats:         make(map[string]*models.Chat),
		conversations: make(map[string][]models.Conversation),
	}
}

func (m *Memory) UpsertUserByEmail(ctx context.Context, email string) (*models.User, error) {
	_ = ctx

	key := NormalizeEmail(email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.usersByEmail[key]; ok {
		out := *user
		return &out, nil
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Email:     key,
		CreatedAt: time.Now().UTC(),
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[key] = user

	out := *user
	return &out, nil
}

func (m *Memory) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}

func (m *Memory) CreateChat(ctx context.Context, chat *models.Chat) error {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *chat
	m.chats[chat.ID] = &stored
	return nil
}

func (m *Memory) FindChat(ctx context.Context, id string) (*models.Chat, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, ok := m.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *chat
	return &out, nil
}

func (m *Memory) ListChatsByOwner(ctx context.Context, userID string) ([]models.Chat, error) {
	_ = ctx

	m.mu.RLock()
	chats := make([]models.Chat, 0)
	for _, chat := range m.chats {
		if chat.UserID == userID {
			chats = append(chats, *chat)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})

	return chats, nil
}

func (m *Memory) SetChatLatestMessage(ctx context.Context, id, message string) (*models.Chat, error) {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[id]
	if !ok {
		return nil, ErrNotFound
	}
	chat.LatestMessage = message
	out := *chat
	return &out, nil
}

func (m *Memory) DeleteChat(ctx context.Context, id string) error {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[id]; !ok {
		return ErrNotFound
	}
	delete(m.chats, id)
	return nil
}

func (m *Memory) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.ChatID] = append(m.conversations[conv.ChatID], *conv)
	return nil
}

func (m *Memory) ListConversationsByChat(ctx context.Context, chatID string) ([]models.Conversation, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.conversations[chatID]
	out := make([]models.Conversation, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *Memory) EnsureSchema(ctx context.Context) error { return nil }

func (m *Memory) Close(ctx context.Context) error { return nil }
