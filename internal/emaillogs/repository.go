package emaillogs

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campverse/backend/internal/models"
)

// logRetention bounds how long delivery logs are kept.
const logRetention = 90 * 24 * time.Hour

// Repository handles email_logs persistence.
type Repository struct {
	col *mongo.Collection
}

// NewRepository creates an email logs repository.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{col: db.Collection("email_logs")}
}

// EnsureIndexes creates lookup indexes and expires old entries.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("email_logs_recipient"),
		},
		{
			Keys:    bson.D{{Key: "refId", Value: 1}},
			Options: options.Index().SetName("email_logs_ref"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(logRetention.Seconds())).SetName("email_logs_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("email_logs indexes: %w", err)
	}
	return nil
}

// Record inserts a delivery attempt.
func (r *Repository) Record(ctx context.Context, entry *models.EmailLog) error {
	entry.ID = primitive.NilObjectID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	res, err := r.col.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	entry.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// Filter narrows List.
type Filter struct {
	Recipient string
	RefID     string
	Status    string
	Limit     int64
}

// List returns email logs, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.EmailLog, error) {
	filter := bson.M{}
	if f.Recipient != "" {
		filter["recipient"] = f.Recipient
	}
	if f.RefID != "" {
		filter["refId"] = f.RefID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.EmailLog{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode email logs: %w", err)
	}
	return list, nil
}
