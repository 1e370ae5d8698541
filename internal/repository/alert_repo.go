package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

type AlertRepository struct {
	col *mongo.Collection
}

func NewAlertRepository(db *mongo.Database) *AlertRepository {
	return &AlertRepository{col: db.Collection(AlertsCollection)}
}

func (r *AlertRepository) Create(ctx context.Context, a *domain.Alert) error {
	_, err := r.col.InsertOne(ctx, a)
	return err
}

func (r *AlertRepository) ClearMessageAlerts(ctx context.Context, userID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"user_id": userID, "type": domain.AlertMessage})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
