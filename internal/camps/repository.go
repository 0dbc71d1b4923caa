package camps

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campverse/backend/internal/models"
)

// ErrSlugTaken is returned by Create when the slug is already used.
var ErrSlugTaken = errors.New("camp slug already exists")

// Repository handles camp persistence in the camps collection.
type Repository struct {
	col *mongo.Collection
}

// NewRepository creates a camps repository.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{col: db.Collection("camps")}
}

// EnsureIndexes creates the unique slug index and listing indexes.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("camps_slug_unique"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("camps_status_created"),
		},
		{
			Keys:    bson.D{{Key: "organizerId", Value: 1}},
			Options: options.Index().SetName("camps_organizer"),
		},
	})
	if err != nil {
		return fmt.Errorf("camps indexes: %w", err)
	}
	return nil
}

// Create inserts camp and sets its ID.
func (r *Repository) Create(ctx context.Context, camp *models.Camp) error {
	camp.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, camp)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert camp: %w", err)
	}
	camp.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID returns the camp or nil.
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Camp, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetBySlug returns the camp or nil.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Camp, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*models.Camp, error) {
	var c models.Camp
	if err := r.col.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find camp: %w", err)
	}
	return &c, nil
}

// ListFilter narrows List. Empty Statuses means any status.
type ListFilter struct {
	Statuses    []models.CampStatus
	OrganizerID *primitive.ObjectID
	Category    string
	Search      string
	Limit       int64
	Skip        int64
}

// List returns camps newest first, without embedded reviews, plus the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Camp, int64, error) {
	filter := bson.M{}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.OrganizerID != nil {
		filter["organizerId"] = *f.OrganizerID
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"name": rx}, bson.M{"location": rx}}
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count camps: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"reviews": 0})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list camps: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.Camp{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, fmt.Errorf("decode camps: %w", err)
	}
	return list, total, nil
}

// Update applies set and returns the updated camp, or nil when missing. A slug collision
// yields ErrSlugTaken.
func (r *Repository) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Camp, error) {
	set["updatedAt"] = time.Now().UTC()
	camp, err := r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return nil, ErrSlugTaken
	}
	return camp, err
}

// Delete removes a camp. Reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete camp: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// ReviewOutcome is the admin decision persisted on a pending camp.
type ReviewOutcome struct {
	Status     models.CampStatus
	Score      int
	Reason     string
	ReviewedBy primitive.ObjectID
}

// SetReviewOutcome moves a pending camp to its reviewed status. Returns nil when the camp is
// missing or no longer pending.
func (r *Repository) SetReviewOutcome(ctx context.Context, id primitive.ObjectID, o ReviewOutcome) (*models.Camp, error) {
	now := time.Now().UTC()
	set := bson.M{
		"status":            o.Status,
		"verificationScore": o.Score,
		"reviewedBy":        o.ReviewedBy,
		"reviewedAt":        now,
		"updatedAt":         now,
	}
	if o.Status == models.CampStatusActive || o.Status == models.CampStatusFull {
		set["approvedAt"] = now
	}
	update := bson.M{"$set": set}
	if o.Reason != "" {
		set["rejectionReason"] = o.Reason
	} else {
		update["$unset"] = bson.M{"rejectionReason": ""}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id, "status": models.CampStatusPending}, update)
}

// TryEnroll takes one seat if enrolled < capacity, flipping an active camp to full when the
// last seat goes. Returns nil when no seat was available.
func (r *Repository) TryEnroll(ctx context.Context, id primitive.ObjectID) (*models.Camp, error) {
	filter := bson.M{
		"_id":   id,
		"$expr": bson.M{"$lt": bson.A{"$enrolled", "$capacity"}},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"enrolled":  bson.M{"$add": bson.A{"$enrolled", 1}},
			"updatedAt": "$$NOW",
		}}},
		{{Key: "$set", Value: bson.M{
			"status": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$status", models.CampStatusActive}},
					bson.M{"$gte": bson.A{"$enrolled", "$capacity"}},
				}},
				models.CampStatusFull,
				"$status",
			}},
		}}},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

// ReleaseSeat gives back one seat, reopening a full camp. Never drops below zero.
func (r *Repository) ReleaseSeat(ctx context.Context, id primitive.ObjectID) (*models.Camp, error) {
	filter := bson.M{"_id": id, "enrolled": bson.M{"$gt": 0}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"enrolled":  bson.M{"$subtract": bson.A{"$enrolled", 1}},
			"updatedAt": "$$NOW",
		}}},
		{{Key: "$set", Value: bson.M{
			"status": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$status", models.CampStatusFull}},
					bson.M{"$lt": bson.A{"$enrolled", "$capacity"}},
				}},
				models.CampStatusActive,
				"$status",
			}},
		}}},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

// AddReview appends review and recomputes avgRating (1 decimal) and ratingBreakdown in the
// same write. Returns nil when the camp is missing or the user already reviewed it.
func (r *Repository) AddReview(ctx context.Context, id primitive.ObjectID, review models.Review) (*models.Camp, error) {
	filter := bson.M{"_id": id, "reviews.userId": bson.M{"$ne": review.UserID}}
	bucket := strconv.Itoa(review.Rating)
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reviews": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$reviews", bson.A{}}},
				bson.A{bson.M{"$literal": review}},
			}},
			"ratingBreakdown": bson.M{"$mergeObjects": bson.A{
				bson.M{"$ifNull": bson.A{"$ratingBreakdown", bson.M{}}},
				bson.M{bucket: bson.M{"$add": bson.A{
					bson.M{"$ifNull": bson.A{"$ratingBreakdown." + bucket, 0}},
					1,
				}}},
			}},
			"updatedAt": "$$NOW",
		}}},
		{{Key: "$set", Value: bson.M{
			"avgRating": bson.M{"$round": bson.A{bson.M{"$avg": "$reviews.rating"}, 1}},
		}}},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *Repository) findOneAndUpdate(ctx context.Context, filter bson.M, update interface{}) (*models.Camp, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var c models.Camp
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("update camp: %w", err)
	}
	return &c, nil
}
