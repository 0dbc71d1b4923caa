package registrations

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
)

// Repository handles registration persistence.
type Repository struct {
	col *mongo.Collection
}

// NewRepository creates a registrations repository.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{col: db.Collection("registrations")}
}

// EnsureIndexes creates lookup indexes. (userId, campId) is deliberately not unique; the
// service checks for duplicates before taking a seat.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "campId", Value: 1}},
			Options: options.Index().SetName("registrations_user_camp"),
		},
		{
			Keys:    bson.D{{Key: "campId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("registrations_camp_status"),
		},
	})
	if err != nil {
		return fmt.Errorf("registrations indexes: %w", err)
	}
	return nil
}

// Create inserts reg and sets its ID.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	reg.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, reg)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	reg.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID returns the registration or nil.
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Registration, error) {
	var reg models.Registration
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&reg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// FindByUserAndCamp returns the user's most recent registration for the camp, or nil.
func (r *Repository) FindByUserAndCamp(ctx context.Context, userID, campID primitive.ObjectID) (*models.Registration, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "appliedAt", Value: -1}})
	var reg models.Registration
	if err := r.col.FindOne(ctx, bson.M{"userId": userID, "campId": campID}, opts).Decode(&reg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find registration by user and camp: %w", err)
	}
	return &reg, nil
}

// Filter narrows List.
type Filter struct {
	UserID *primitive.ObjectID
	CampID *primitive.ObjectID
	Status models.RegistrationStatus
	Limit  int64
	Skip   int64
}

// List returns registrations, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Registration, error) {
	filter := bson.M{}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.CampID != nil {
		filter["campId"] = *f.CampID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "appliedAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.Registration{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode registrations: %w", err)
	}
	return list, nil
}

// CountByCamp returns registration counts per status for a camp.
func (r *Repository) CountByCamp(ctx context.Context, campID primitive.ObjectID) (map[models.RegistrationStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"campId": campID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Status models.RegistrationStatus `bson:"_id"`
		Count  int                       `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode registration counts: %w", err)
	}
	out := make(map[models.RegistrationStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// Transition moves a registration to set["status"] only if its current status is one of
// from. Returns nil when the registration is missing or in another status.
func (r *Repository) Transition(ctx context.Context, id primitive.ObjectID, from []models.RegistrationStatus, set bson.M) (*models.Registration, error) {
	set["updatedAt"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	var reg models.Registration
	if err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&reg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("transition registration: %w", err)
	}
	return &reg, nil
}
