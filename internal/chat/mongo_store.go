package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lukaiqi/educhat/internal/db"
	"github.com/lukaiqi/educhat/internal/models"
)

// MongoStore persists each conversation as a single document with its
// messages embedded, so an append plus the updatedAt bump is one atomic
// update and deletion can never orphan messages.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(store *db.Mongo) *MongoStore {
	return &MongoStore{coll: store.Conversations}
}

type conversationDoc struct {
	ID        string       `bson:"_id"`
	OwnerID   string       `bson:"owner_id"`
	Title     string       `bson:"title"`
	Messages  []messageDoc `bson:"messages"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

type messageDoc struct {
	ID        string    `bson:"id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

func (s *MongoStore) Create(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	now := time.Now().UTC()
	doc := conversationDoc{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Messages:  []messageDoc{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("mongo: insert conversation: %w", err)
	}

	return doc.toModel(), nil
}

func (s *MongoStore) List(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.D{{Key: "messages", Value: 0}})

	cursor, err := s.coll.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := make([]models.ConversationSummary, 0)
	for cursor.Next(ctx) {
		var doc conversationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode conversation: %w", err)
		}
		summaries = append(summaries, models.ConversationSummary{
			ID:        doc.ID,
			Title:     doc.Title,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}

	return summaries, nil
}

func (s *MongoStore) Get(ctx context.Context, id, requesterID string) (*models.Conversation, error) {
	var doc conversationDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "owner_id": requesterID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get conversation: %w", err)
	}

	return doc.toModel(), nil
}

func (s *MongoStore) AppendMessage(ctx context.Context, id, role, content string) (*models.Message, error) {
	now := time.Now().UTC()
	message := messageDoc{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}

	update := bson.M{
		"$push": bson.M{"messages": message},
		"$set":  bson.M{"updated_at": now},
	}

	result, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return nil, fmt.Errorf("mongo: append message: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrNotFound
	}

	return message.toModel(id), nil
}

func (s *MongoStore) Rename(ctx context.Context, id, title string) error {
	update := bson.M{"$set": bson.M{"title": title, "updated_at": time.Now().UTC()}}

	result, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo: rename conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id, requesterID string) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "owner_id": requesterID})
	if err != nil {
		return fmt.Errorf("mongo: delete conversation: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, id, requesterID string) ([]models.Message, error) {
	conversation, err := s.Get(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	return conversation.Messages, nil
}

func (s *MongoStore) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.M{"owner_id": ownerID}); err != nil {
		return fmt.Errorf("mongo: delete conversations by owner: %w", err)
	}
	return nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("mongo: count conversations: %w", err)
	}
	return count, nil
}

func (d conversationDoc) toModel() *models.Conversation {
	messages := make([]models.Message, 0, len(d.Messages))
	for _, message := range d.Messages {
		messages = append(messages, *message.toModel(d.ID))
	}

	return &models.Conversation{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Title:     d.Title,
		Messages:  messages,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d messageDoc) toModel(conversationID string) *models.Message {
	return &models.Message{
		ID:             d.ID,
		ConversationID: conversationID,
		Role:           d.Role,
		Content:        d.Content,
		CreatedAt:      d.CreatedAt,
	}
}
