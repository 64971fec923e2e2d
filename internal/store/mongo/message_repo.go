package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campushub/internal/domain"
)

type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// messageDoc is the stored shape of a message. Messages are a flat
// collection, one document per message; conversations are derived by
// grouping on conversation_key.
type messageDoc struct {
	ID                 primitive.ObjectID  `bson:"_id,omitempty"`
	ConversationKey    string              `bson:"conversation_key"`
	SenderID           string              `bson:"sender_id"`
	RecipientID        string              `bson:"recipient_id"`
	Body               string              `bson:"body"`
	Attachments        []domain.Attachment `bson:"attachments,omitempty"`
	Read               bool                `bson:"read"`
	DeletedFor         []string            `bson:"deleted_for,omitempty"`
	DeletedForEveryone bool                `bson:"deleted_for_everyone"`
	CreatedAt          time.Time           `bson:"created_at"`
}

func (d *messageDoc) toDomain() *domain.Message {
	return &domain.Message{
		ID:                 d.ID.Hex(),
		ConversationKey:    d.ConversationKey,
		SenderID:           d.SenderID,
		RecipientID:        d.RecipientID,
		Body:               d.Body,
		Attachments:        d.Attachments,
		Read:               d.Read,
		DeletedFor:         d.DeletedFor,
		DeletedForEveryone: d.DeletedForEveryone,
		CreatedAt:          d.CreatedAt,
	}
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	doc := messageDoc{
		ConversationKey:    m.ConversationKey,
		SenderID:           m.SenderID,
		RecipientID:        m.RecipientID,
		Body:               m.Body,
		Attachments:        m.Attachments,
		Read:               m.Read,
		DeletedFor:         m.DeletedFor,
		DeletedForEveryone: m.DeletedForEveryone,
		CreatedAt:          time.Now().UTC(),
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	m.ID = id.Hex()
	m.CreatedAt = doc.CreatedAt
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	var doc messageDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MessageRepo) ListForConversation(ctx context.Context, conversationKey string, limit int) ([]*domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{"conversation_key": conversationKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	res := make([]*domain.Message, len(docs))
	for i := range docs {
		res[i] = docs[i].toDomain()
	}
	return res, nil
}

func (r *MessageRepo) MarkAllRead(ctx context.Context, conversationKey, recipientID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"conversation_key": conversationKey, "recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"recipient_id": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) CountUnreadInConversation(ctx context.Context, conversationKey, recipientID string) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{
		"conversation_key": conversationKey,
		"recipient_id":     recipientID,
		"read":             false,
	})
	if err != nil {
		return 0, fmt.Errorf("count unread in conversation: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) LatestPerConversation(ctx context.Context, userID string) ([]*domain.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"sender_id": userID},
			bson.M{"recipient_id": userID},
		}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$conversation_key",
			"latest": bson.M{"$first": "$$ROOT"},
		}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$latest"}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate conversations: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	res := make([]*domain.Message, len(docs))
	for i := range docs {
		res[i] = docs[i].toDomain()
	}
	return res, nil
}

func (r *MessageRepo) AddDeletedFor(ctx context.Context, messageID, userID string) error {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := r.coll.UpdateByID(ctx, oid, bson.M{"$addToSet": bson.M{"deleted_for": userID}})
	if err != nil {
		return fmt.Errorf("delete for user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) MarkDeletedForEveryone(ctx context.Context, messageID, tombstone string) error {
	oid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := r.coll.UpdateByID(ctx, oid, bson.M{
		"$set":   bson.M{"deleted_for_everyone": true, "body": tombstone},
		"$unset": bson.M{"attachments": ""},
	})
	if err != nil {
		return fmt.Errorf("delete for everyone: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
