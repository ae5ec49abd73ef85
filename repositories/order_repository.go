package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/datingdna/datingdna_backend/models"
)

// ErrNotFound is returned when a looked-up document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrDuplicate is returned when an insert collides with a unique index.
var ErrDuplicate = errors.New("duplicate document")

// OrderRepository persists the order ledger. Refund and dispute writes are
// conditional on current document state so that duplicate or racing webhook
// deliveries never double-apply.
type OrderRepository interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	// MarkRefunded applies the refund only if the order has no refund yet.
	// Returns false when another write already refunded the order.
	MarkRefunded(ctx context.Context, id primitive.ObjectID, refund models.RefundUpdate) (bool, error)
	// MarkDisputed flags the order disputed only if it is not already.
	MarkDisputed(ctx context.Context, id primitive.ObjectID, dispute models.DisputeUpdate) (bool, error)
	List(ctx context.Context, page, limit int64) ([]models.Order, int64, error)
}

type mongoOrderRepository struct {
	collection *mongo.Collection
}

// NewMongoOrderRepository returns an OrderRepository backed by the orders
// collection.
func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{collection: db.Collection("orders")}
}

func (r *mongoOrderRepository) Insert(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoOrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *mongoOrderRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, bson.M{"paymentIntentId": paymentIntentID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *mongoOrderRepository) MarkRefunded(ctx context.Context, id primitive.ObjectID, refund models.RefundUpdate) (bool, error) {
	filter := bson.M{
		"_id":        id,
		"refundedAt": bson.M{"$exists": false},
	}
	update := bson.M{
		"$set": bson.M{
			"refundedAt":   refund.RefundedAt,
			"refundAmount": refund.Amount,
			"fullRefund":   refund.FullRefund,
			"refundId":     refund.RefundID,
			"refundReason": refund.Reason,
			"refundStatus": refund.Status,
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoOrderRepository) MarkDisputed(ctx context.Context, id primitive.ObjectID, dispute models.DisputeUpdate) (bool, error) {
	filter := bson.M{
		"_id":      id,
		"disputed": bson.M{"$ne": true},
	}
	update := bson.M{
		"$set": bson.M{
			"disputed":      true,
			"disputeId":     dispute.DisputeID,
			"disputeStatus": dispute.Status,
			"disputedAt":    dispute.DisputedAt,
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoOrderRepository) List(ctx context.Context, page, limit int64) ([]models.Order, int64, error) {
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
