package notification

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mesikahq/clinic-records/internal/apperr"
)

const collectionName = "notifications"

type mongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) Store {
	return &mongoStore{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the inbox index used by listing and counting.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "leida", Value: 1}, {Key: "fecha", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create notification index: %w", err)
	}
	return nil
}

func (s *mongoStore) Insert(ctx context.Context, n *Notification) error {
	res, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return apperr.Internal(err, "failed to store notification")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid
	}
	return nil
}

func (s *mongoStore) Get(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	var n Notification
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, apperr.Internal(err, "failed to load notification")
	}
	return &n, nil
}

func (s *mongoStore) FindByUser(ctx context.Context, userID int64, limit int64) ([]*Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "fecha", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list notifications")
	}
	defer cursor.Close(ctx)

	list := []*Notification{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, apperr.Internal(err, "failed to decode notifications")
	}
	return list, nil
}

func (s *mongoStore) SetRead(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"leida": true}})
	if err != nil {
		return apperr.Internal(err, "failed to update notification")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) CountUnread(ctx context.Context, userID int64) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"user_id": userID, "leida": false})
	if err != nil {
		return 0, apperr.Internal(err, "failed to count notifications")
	}
	return count, nil
}
