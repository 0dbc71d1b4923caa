package promocodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// Repository handles promo code persistence in the promocodes collection.
type Repository struct {
	col *mongo.Collection
}

// NewRepository creates a promo code repository.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{col: db.Collection("promocodes")}
}

// EnsureIndexes creates the unique code index.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "code", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("promocodes_code_unique"),
	})
	if err != nil {
		return fmt.Errorf("promocodes indexes: %w", err)
	}
	return nil
}

// Create inserts promo and sets its ID.
func (r *Repository) Create(ctx context.Context, promo *models.PromoCode) error {
	promo.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, promo)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrPromoCodeTaken
		}
		return fmt.Errorf("insert promo code: %w", err)
	}
	promo.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID returns the promo code or nil.
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.PromoCode, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByCode returns the promo code or nil. code must already be normalized.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return r.findOne(ctx, bson.M{"code": code})
}

// List returns all promo codes, newest first.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]models.PromoCode, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list promo codes: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.PromoCode{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode promo codes: %w", err)
	}
	return list, nil
}

// Update sets fields on a promo code and returns the updated document, or nil if missing.
func (r *Repository) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.PromoCode, error) {
	set["updatedAt"] = time.Now().UTC()
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

// Delete removes a promo code. Returns false when nothing matched.
func (r *Repository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete promo code: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// Redeem consumes one use of an active code. It returns nil when the code is missing,
// inactive or already used usageLimit times, so concurrent redemptions never overshoot.
func (r *Repository) Redeem(ctx context.Context, code string) (*models.PromoCode, error) {
	filter := bson.M{
		"code":     code,
		"isActive": true,
		"$or": bson.A{
			bson.M{"usageLimit": bson.M{"$in": bson.A{0, nil}}},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"usedCount": 1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

// Unredeem gives back one use after a failed payment insert.
func (r *Repository) Unredeem(ctx context.Context, code string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"code": code, "usedCount": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"usedCount": -1}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("unredeem promo code: %w", err)
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.col.FindOne(ctx, filter).Decode(&promo); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find promo code: %w", err)
	}
	return &promo, nil
}

func (r *Repository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.PromoCode, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var promo models.PromoCode
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&promo); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("update promo code: %w", err)
	}
	return &promo, nil
}
