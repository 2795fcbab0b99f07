package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/otpchat/internal/models"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg utils.PostgresConfig) (*Postgres, error) {
	dsn := cfg.BuildDSN()
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close(ctx context.Context) error {
	_ = ctx
	if p == nil || p.Pool == nil {
		return nil
	}
	p.Pool.Close()
	return nil
}

// EnsureSchema creates the tables. Chats and conversations carry no foreign
// keys so deleting a chat leaves its conversations in place, matching the
// document backend.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	statements := []string{
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS users (",
			"    id TEXT PRIMARY KEY,",
			"    email TEXT NOT NULL UNIQUE,",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS chats (",
			"    id TEXT PRIMARY KEY,",
			"    user_id TEXT NOT NULL,",
			"    latest_message TEXT NOT NULL DEFAULT '',",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS chats_user_created_idx ON chats (user_id, created_at DESC)",
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS conversations (",
			"    id TEXT PRIMARY KEY,",
			"    chat_id TEXT NOT NULL,",
			"    question TEXT NOT NULL,",
			"    answer TEXT NOT NULL,",
			"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS conversations_chat_created_idx ON conversations (chat_id, created_at)",
	}

	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	return nil
}

func (p *Postgres) UpsertUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
RETURNING id, email, created_at`

	var user models.User
	err := p.Pool.QueryRow(ctx, query, uuid.NewString(), NormalizeEmail(email), time.Now().UTC()).
		Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert user: %w", err)
	}
	return &user, nil
}

func (p *Postgres) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := p.Pool.QueryRow(ctx, "SELECT id, email, created_at FROM users WHERE id = $1", id).
		Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find user: %w", err)
	}
	return &user, nil
}

func (p *Postgres) CreateChat(ctx context.Context, chat *models.Chat) error {
	_, err := p.Pool.Exec(ctx,
		"INSERT INTO chats (id, user_id, latest_message, created_at) VALUES ($1, $2, $3, $4)",
		chat.ID, chat.UserID, chat.LatestMessage, chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert chat: %w", err)
	}
	return nil
}

func (p *Postgres) FindChat(ctx context.Context, id string) (*models.Chat, error) {
	chat, err := scanChat(p.Pool.QueryRow(ctx,
		"SELECT id, user_id, latest_message, created_at FROM chats WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: find chat: %w", err)
	}
	return chat, nil
}

func (p *Postgres) ListChatsByOwner(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := p.Pool.Query(ctx,
		"SELECT id, user_id, latest_message, created_at FROM chats WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan chat: %w", err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list chats: %w", err)
	}
	return chats, nil
}

func (p *Postgres) SetChatLatestMessage(ctx context.Context, id, message string) (*models.Chat, error) {
	chat, err := scanChat(p.Pool.QueryRow(ctx,
		"UPDATE chats SET latest_message = $2 WHERE id = $1 RETURNING id, user_id, latest_message, created_at", id, message))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres: update chat: %w", err)
	}
	return chat, nil
}

func (p *Postgres) DeleteChat(ctx context.Context, id string) error {
	tag, err := p.Pool.Exec(ctx, "DELETE FROM chats WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := p.Pool.Exec(ctx,
		"INSERT INTO conversations (id, chat_id, question, answer, created_at) VALUES ($1, $2, $3, $4, $5)",
		conv.ID, conv.ChatID, conv.Question, conv.Answer, conv.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert conversation: %w", err)
	}
	return nil
}

func (p *Postgres) ListConversationsByChat(ctx context.Context, chatID string) ([]models.Conversation, error) {
	rows, err := p.Pool.Query(ctx,
		"SELECT id, chat_id, question, answer, created_at FROM conversations WHERE chat_id = $1 ORDER BY created_at ASC", chatID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.ChatID, &conv.Question, &conv.Answer, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}
	return conversations, nil
}

func scanChat(row pgx.Row) (*models.Chat, error) {
	var chat models.Chat
	if err := row.Scan(&chat.ID, &chat.UserID, &chat.LatestMessage, &chat.CreatedAt); err != nil {
		return nil, err
	}
	return &chat, nil
}
