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

type CallLogRepository struct {
	col *mongo.Collection
}

func NewCallLogRepository(db *mongo.Database) *CallLogRepository {
	return &CallLogRepository{col: db.Collection(CallLogsCollection)}
}

func (r *CallLogRepository) Create(ctx context.Context, l *domain.CallLog) error {
	_, err := r.col.InsertOne(ctx, l)
	return err
}

func (r *CallLogRepository) Get(ctx context.Context, id string) (*domain.CallLog, error) {
	var l domain.CallLog
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("call log not found")
		}
		return nil, err
	}
	return &l, nil
}

func (r *CallLogRepository) Finalize(ctx context.Context, id string, status domain.CallStatus, duration int, endedAt time.Time) (*domain.CallLog, error) {
	update := bson.M{"$set": bson.M{"status": status, "duration": duration, "ended_at": endedAt}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var l domain.CallLog
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&l); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("call log not found")
		}
		return nil, err
	}
	return &l, nil
}
