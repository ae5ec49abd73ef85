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

// PartnerRepository persists referral partners.
type PartnerRepository interface {
	Insert(ctx context.Context, partner *models.Partner) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Partner, error)
	FindByCode(ctx context.Context, code string) (*models.Partner, error)
	Update(ctx context.Context, id primitive.ObjectID, set map[string]interface{}) (bool, error)
	List(ctx context.Context, page, limit int64) ([]models.Partner, int64, error)
}

type mongoPartnerRepository struct {
	collection *mongo.Collection
}

// NewMongoPartnerRepository returns a PartnerRepository backed by the
// partners collection.
func NewMongoPartnerRepository(db *mongo.Database) PartnerRepository {
	return &mongoPartnerRepository{collection: db.Collection("partners")}
}

func (r *mongoPartnerRepository) Insert(ctx context.Context, partner *models.Partner) error {
	if partner.ID.IsZero() {
		partner.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if partner.CreatedAt.IsZero() {
		partner.CreatedAt = now
	}
	partner.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, partner)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoPartnerRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Partner, error) {
	var partner models.Partner
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&partner)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *mongoPartnerRepository) FindByCode(ctx context.Context, code string) (*models.Partner, error) {
	var partner models.Partner
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&partner)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *mongoPartnerRepository) Update(ctx context.Context, id primitive.ObjectID, set map[string]interface{}) (bool, error) {
	fields := bson.M{"updatedAt": time.Now()}
	for k, v := range set {
		fields[k] = v
	}
	result, err := r.collection.UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *mongoPartnerRepository) List(ctx context.Context, page, limit int64) ([]models.Partner, int64, error) {
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

	partners := []models.Partner{}
	if err := cursor.All(ctx, &partners); err != nil {
		return nil, 0, err
	}
	return partners, total, nil
}
