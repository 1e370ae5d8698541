package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
)

type MessageRepository struct {
	coll *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{coll: db.Collection(MessagesCollection)}
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("message not found")
	}
	return err
}

func conversationFilter(conv domain.ConversationKey) bson.M {
	if conv.IsGroup() {
		return bson.M{"group_id": conv.GroupID}
	}
	return bson.M{"$or": bson.A{
		bson.M{"sender_id": conv.UserA, "recipient_id": conv.UserB},
		bson.M{"sender_id": conv.UserB, "recipient_id": conv.UserA},
	}}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	m.EnsureSlices()
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MessageRepository) Get(ctx context.Context, id string) (*domain.Message, error) {
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	m.EnsureSlices()
	return &m, nil
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{"$set": bson.M{"delivered": true}})
	return err
}

func (r *MessageRepository) PendingFor(ctx context.Context, recipientID string) ([]*domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"recipient_id": recipientID, "delivered": false}, opts)
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string, at time.Time) (*domain.Message, error) {
	update := bson.M{"$set": bson.M{"read": true, "delivered": true, "read_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	m.EnsureSlices()
	return &m, nil
}

// MarkAllRead returns the ids it flipped so the sender can be told which ones.
func (r *MessageRepository) MarkAllRead(ctx context.Context, senderID, recipientID string, at time.Time) ([]string, error) {
	filter := bson.M{"sender_id": senderID, "recipient_id": recipientID, "read": false}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	update := bson.M{"$set": bson.M{"read": true, "delivered": true, "read_at": at}}
	if _, err := r.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *MessageRepository) AddDeletedBy(ctx context.Context, id, userID string) (*domain.Message, error) {
	update := bson.M{"$addToSet": bson.M{"deleted_by": userID}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	m.EnsureSlices()
	return &m, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MessageRepository) Tombstone(ctx context.Context, id, text string) (*domain.Message, error) {
	update := bson.M{
		"$set":   bson.M{"content": text, "encrypted": false, "deleted_for_everyone": true},
		"$unset": bson.M{"attachment": ""},
		"$inc":   bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	m.EnsureSlices()
	return &m, nil
}

// replaceVersioned swaps one sub-list only if the row still carries version.
func (r *MessageRepository) replaceVersioned(ctx context.Context, id string, version int64, field string, value any) error {
	filter := bson.M{"_id": id, "version": version}
	update := bson.M{"$set": bson.M{field: value}, "$inc": bson.M{"version": 1}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("message not found")
		}
		return apperr.ErrConflict
	}
	return nil
}

func (r *MessageRepository) ReplaceReactions(ctx context.Context, id string, version int64, reactions []domain.Reaction) error {
	if reactions == nil {
		reactions = []domain.Reaction{}
	}
	return r.replaceVersioned(ctx, id, version, "reactions", reactions)
}

func (r *MessageRepository) ReplacePins(ctx context.Context, id string, version int64, pins []domain.PinEntry) error {
	if pins == nil {
		pins = []domain.PinEntry{}
	}
	return r.replaceVersioned(ctx, id, version, "pinned_by", pins)
}

func (r *MessageRepository) Pinned(ctx context.Context, conv domain.ConversationKey) ([]*domain.Message, error) {
	filter := conversationFilter(conv)
	filter["pinned_by.0"] = bson.M{"$exists": true}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (r *MessageRepository) History(ctx context.Context, conv domain.ConversationKey, viewerID string, limit int, before time.Time) ([]*domain.Message, error) {
	filter := conversationFilter(conv)
	filter["deleted_by"] = bson.M{"$ne": viewerID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Message, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		m.EnsureSlices()
		out = append(out, &m)
	}
	return out, cur.Err()
}
