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

// CommissionRepository persists the commission ledger. Every status change
// is a compare-and-swap keyed on the current status, which is what keeps the
// state machine monotonic under concurrent sweeps, refund handlers, and
// payout batchers.
type CommissionRepository interface {
	Insert(ctx context.Context, commission *models.Commission) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Commission, error)
	FindByOrderID(ctx context.Context, orderID primitive.ObjectID) ([]models.Commission, error)
	// FindLockEligible returns pending commissions whose hold window has
	// elapsed at the given instant.
	FindLockEligible(ctx context.Context, now time.Time) ([]models.Commission, error)
	FindLockedInPeriod(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Commission, error)
	// Transition moves the commission from one of fromStatuses to toStatus.
	// Returns false without error when the commission is no longer in any of
	// the expected statuses (someone else advanced it first).
	Transition(ctx context.Context, id primitive.ObjectID, fromStatuses []string, toStatus string) (bool, error)
	// Void cancels the commission with the given reason, conditional on its
	// current status being one of fromStatuses.
	Void(ctx context.Context, id primitive.ObjectID, fromStatuses []string, reason, refundID string, at time.Time) (bool, error)
	// AdjustForRefund scales the amounts after a partial refund, at most once
	// per refund reference and only while locked or queued for payout.
	AdjustForRefund(ctx context.Context, id primitive.ObjectID, refundID string, newCommissionCents, newBaseCents int64, refundPercent float64) (bool, error)
	// MarkPaid finalizes the commission out of queued_for_payout, recording
	// the paying payout.
	MarkPaid(ctx context.Context, id primitive.ObjectID, payoutID primitive.ObjectID, at time.Time) (bool, error)
	SummarizeByPartner(ctx context.Context) ([]models.CommissionSummary, error)
	List(ctx context.Context, page, limit int64) ([]models.Commission, int64, error)
}

type mongoCommissionRepository struct {
	collection *mongo.Collection
}

// NewMongoCommissionRepository returns a CommissionRepository backed by the
// commissions collection.
func NewMongoCommissionRepository(db *mongo.Database) CommissionRepository {
	return &mongoCommissionRepository{collection: db.Collection("commissions")}
}

func (r *mongoCommissionRepository) Insert(ctx context.Context, commission *models.Commission) error {
	if commission.ID.IsZero() {
		commission.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if commission.CreatedAt.IsZero() {
		commission.CreatedAt = now
	}
	commission.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, commission)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoCommissionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Commission, error) {
	var commission models.Commission
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&commission)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *mongoCommissionRepository) FindByOrderID(ctx context.Context, orderID primitive.ObjectID) ([]models.Commission, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"orderId": orderID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	commissions := []models.Commission{}
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *mongoCommissionRepository) FindLockEligible(ctx context.Context, now time.Time) ([]models.Commission, error) {
	filter := bson.M{
		"status":         models.CommissionStatusPending,
		"lockEligibleAt": bson.M{"$lte": now},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	commissions := []models.Commission{}
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *mongoCommissionRepository) FindLockedInPeriod(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Commission, error) {
	filter := bson.M{
		"status": models.CommissionStatusLocked,
		"lockEligibleAt": bson.M{
			"$gte": periodStart,
			"$lte": periodEnd,
		},
	}
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	commissions := []models.Commission{}
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *mongoCommissionRepository) Transition(ctx context.Context, id primitive.ObjectID, fromStatuses []string, toStatus string) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": fromStatuses},
	}
	update := bson.M{
		"$set": bson.M{
			"status":    toStatus,
			"updatedAt": time.Now(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoCommissionRepository) Void(ctx context.Context, id primitive.ObjectID, fromStatuses []string, reason, refundID string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": fromStatuses},
	}
	set := bson.M{
		"status":     models.CommissionStatusVoid,
		"voidReason": reason,
		"voidedAt":   at,
		"updatedAt":  time.Now(),
	}
	if refundID != "" {
		set["voidRefundId"] = refundID
	}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoCommissionRepository) AdjustForRefund(ctx context.Context, id primitive.ObjectID, refundID string, newCommissionCents, newBaseCents int64, refundPercent float64) (bool, error) {
	filter := bson.M{
		"_id": id,
		"status": bson.M{"$in": []string{
			models.CommissionStatusLocked,
			models.CommissionStatusQueuedForPayout,
		}},
		"adjustedRefundId": bson.M{"$ne": refundID},
	}
	update := []bson.M{
		// Pipeline update so the original amounts are captured from the
		// document itself in the same atomic write.
		{"$set": bson.M{
			"originalCommissionCents": bson.M{"$ifNull": []interface{}{"$originalCommissionCents", "$commissionCents"}},
			"originalBaseAmountCents": bson.M{"$ifNull": []interface{}{"$originalBaseAmountCents", "$baseAmountCents"}},
		}},
		{"$set": bson.M{
			"commissionCents":      newCommissionCents,
			"baseAmountCents":      newBaseCents,
			"adjustedForRefund":    true,
			"appliedRefundPercent": refundPercent,
			"adjustedRefundId":     refundID,
			"updatedAt":            time.Now(),
		}},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoCommissionRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, payoutID primitive.ObjectID, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":    id,
		"status": models.CommissionStatusQueuedForPayout,
	}
	update := bson.M{
		"$set": bson.M{
			"status":       models.CommissionStatusPaid,
			"paidPayoutId": payoutID,
			"paidAt":       at,
			"updatedAt":    time.Now(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoCommissionRepository) SummarizeByPartner(ctx context.Context) ([]models.CommissionSummary, error) {
	statusSum := func(status string) bson.M {
		return bson.M{"$sum": bson.M{"$cond": []interface{}{
			bson.M{"$eq": []interface{}{"$status", status}},
			"$commissionCents",
			0,
		}}}
	}
	pipeline := []bson.M{
		{"$group": bson.M{
			"_id":          "$partnerCode",
			"pendingCents": statusSum(models.CommissionStatusPending),
			"lockedCents":  statusSum(models.CommissionStatusLocked),
			"queuedCents":  statusSum(models.CommissionStatusQueuedForPayout),
			"paidCents":    statusSum(models.CommissionStatusPaid),
			"voidCents":    statusSum(models.CommissionStatusVoid),
			"count":        bson.M{"$sum": 1},
		}},
		{"$sort": bson.M{"_id": 1}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	summaries := []models.CommissionSummary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *mongoCommissionRepository) List(ctx context.Context, page, limit int64) ([]models.Commission, int64, error) {
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

	commissions := []models.Commission{}
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, 0, err
	}
	return commissions, total, nil
}
