package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/wuwenbin0122/otpchat/internal/models"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

type Mongo struct {
	Client        *mongo.Client
	Database      *mongo.Database
	Users         *mongo.Collection
	Chats         *mongo.Collection
	Conversations *mongo.Collection
}

func NewMongo(ctx context.Context, cfg utils.MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: database name is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	database := client.Database(cfg.Database)
	return &Mongo{
		Client:        client,
		Database:      database,
		Users:         database.Collection("users"),
		Chats:         database.Collection("chats"),
		Conversations: database.Collection("conversations"),
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Disconnect(ctx)
}

func (m *Mongo) EnsureSchema(ctx context.Context) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure user index: %w", err)
	}

	_, err = m.Chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure chat index: %w", err)
	}

	_, err = m.Conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure conversation index: %w", err)
	}

	return nil
}

// UpsertUserByEmail inserts a user for an unseen email and returns the stored
// record either way. The unique email index keeps concurrent logins to one row.
func (m *Mongo) UpsertUserByEmail(ctx context.Context, email string) (*models.User, error) {
	key := NormalizeEmail(email)

	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"email":      key,
			"created_at": time.Now().UTC(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user models.User
	err := m.Users.FindOneAndUpdate(ctx, bson.M{"email": key}, update, opts).Decode(&user)
	if mongo.IsDuplicateKeyError(err) {
		// lost an insert race; the winner's document is there now
		err = m.Users.FindOne(ctx, bson.M{"email": key}).Decode(&user)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: upsert user: %w", err)
	}

	return &user, nil
}

func (m *Mongo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := m.Users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find user: %w", err)
	}
	return &user, nil
}

func (m *Mongo) CreateChat(ctx context.Context, chat *models.Chat) error {
	if _, err := m.Chats.InsertOne(ctx, chat); err != nil {
		return fmt.Errorf("mongo: insert chat: %w", err)
	}
	return nil
}

func (m *Mongo) FindChat(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	if err := m.Chats.FindOne(ctx, bson.M{"_id": id}).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo: find chat: %w", err)
	}
	return &chat, nil
}

func (m *Mongo) ListChatsByOwner(ctx context.Context, userID string) ([]models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := m.Chats.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list chats: %w", err)
	}
	defer cursor.Close(ctx)

	chats := make([]models.Chat, 0)
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("mongo: decode chats: %w", err)
	}
	return chats, nil
}

func (m *Mongo) SetChatLatestMessage(ctx context.Context, id, message string) (*models.Chat, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var chat models.Chat
	err := m.Chats.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"latest_message": message}}, opts).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo: update chat: %w", err)
	}
	return &chat, nil
}

func (m *Mongo) DeleteChat(ctx context.Context, id string) error {
	res, err := m.Chats.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: delete chat: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if _, err := m.Conversations.InsertOne(ctx, conv); err != nil {
		return fmt.Errorf("mongo: insert conversation: %w", err)
	}
	return nil
}

func (m *Mongo) ListConversationsByChat(ctx context.Context, chatID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := m.Conversations.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	conversations := make([]models.Conversation, 0)
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("mongo: decode conversations: %w", err)
	}
	return conversations, nil
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
