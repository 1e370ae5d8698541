package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// UserRepository reads profiles and groups owned by the user service.
// The only write is the last-seen stamp.
type UserRepository struct {
	users  *mongo.Collection
	groups *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{users: db.Collection(UsersCollection), groups: db.Collection(GroupsCollection)}
}

func (r *UserRepository) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &p, nil
}

func (r *UserRepository) SetLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := r.users.UpdateByID(ctx, userID, bson.M{"$set": bson.M{"last_seen": at}})
	return err
}

func (r *UserRepository) Group(ctx context.Context, groupID string) (*domain.Group, error) {
	var g domain.Group
	if err := r.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, err
	}
	return &g, nil
}
