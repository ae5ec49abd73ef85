package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datingdna/datingdna_backend/models"
)

// PayoutRepository persists payout batches and their per-partner items.
type PayoutRepository interface {
	InsertPayout(ctx context.Context, payout *models.Payout) error
	InsertItems(ctx context.Context, items []models.PayoutItem) error
	FindPayoutByID(ctx context.Context, id primitive.ObjectID) (*models.Payout, error)
	FindItemsByPayoutID(ctx context.Context, payoutID primitive.ObjectID) ([]models.PayoutItem, error)
	// TransitionStatus advances the payout status conditional on its current
	// status being one of fromStatuses. Statuses never regress.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, fromStatuses []string, toStatus string, at time.Time) (bool, error)
	ListPayouts(ctx context.Context, page, limit int64) ([]models.Payout, int64, error)
	ListItems(ctx context.Context, page, limit int64) ([]models.PayoutItem, int64, error)
}

type mongoPayoutRepository struct {
	payouts *mongo.Collection
	items   *mongo.Collection
}

// NewMongoPayoutRepository returns a PayoutRepository backed by the payouts
// and payoutItems collections.
func NewMongoPayoutRepository(db *mongo.Database) PayoutRepository {
	return &mongoPayoutRepository{
		payouts: db.Collection("payouts"),
		items:   db.Collection("payoutItems"),
	}
}

func (r *mongoPayoutRepository) InsertPayout(ctx context.Context, payout *models.Payout) error {
	if payout.ID.IsZero() {
		payout.ID = primitive.NewObjectID()
	}
	if payout.CreatedAt.IsZero() {
		payout.CreatedAt = time.Now()
	}
	_, err := r.payouts.InsertOne(ctx, payout)
	return err
}

func (r *mongoPayoutRepository) InsertItems(ctx context.Context, items []models.PayoutItem) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(items))
	now := time.Now()
	for i := range items {
		if items[i].ID.IsZero() {
			items[i].ID = primitive.NewObjectID()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		docs = append(docs, items[i])
	}
	_, err := r.items.InsertMany(ctx, docs)
	return err
}

func (r *mongoPayoutRepository) FindPayoutByID(ctx context.Context, id primitive.ObjectID) (*models.Payout, error) {
	var payout models.Payout
	err := r.payouts.FindOne(ctx, bson.M{"_id": id}).Decode(&payout)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *mongoPayoutRepository) FindItemsByPayoutID(ctx context.Context, payoutID primitive.ObjectID) ([]models.PayoutItem, error) {
	cursor, err := r.items.Find(ctx, bson.M{"payoutId": payoutID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []models.PayoutItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *mongoPayoutRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, fromStatuses []string, toStatus string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": fromStatuses},
	}
	set := bson.M{"status": toStatus}
	switch toStatus {
	case models.PayoutStatusExported:
		set["exportedAt"] = at
	case models.PayoutStatusPaid:
		set["paidAt"] = at
	}
	result, err := r.payouts.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoPayoutRepository) ListPayouts(ctx context.Context, page, limit int64) ([]models.Payout, int64, error) {
	total, err := r.payouts.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.payouts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	payouts := []models.Payout{}
	if err := cursor.All(ctx, &payouts); err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

func (r *mongoPayoutRepository) ListItems(ctx context.Context, page, limit int64) ([]models.PayoutItem, int64, error) {
	total, err := r.items.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.items.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := []models.PayoutItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
