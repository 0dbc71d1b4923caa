package payments

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

// Repository handles payment persistence in the payments collection.
type Repository struct {
	col *mongo.Collection
}

// NewRepository creates a payments repository.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{col: db.Collection("payments")}
}

// EnsureIndexes creates the one-payment-per-registration index and the escrow scan index.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "registrationId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("payments_registration_unique"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "autoReleaseDate", Value: 1}},
			Options: options.Index().SetName("payments_status_release"),
		},
		{
			Keys:    bson.D{{Key: "slipData.transRef", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("payments_transref"),
		},
		{
			Keys:    bson.D{{Key: "organizerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("payments_organizer"),
		},
	})
	if err != nil {
		return fmt.Errorf("payments indexes: %w", err)
	}
	return nil
}

// Create inserts pay and sets its ID.
func (r *Repository) Create(ctx context.Context, pay *models.Payment) error {
	pay.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, pay)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	pay.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID returns the payment or nil.
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByRegistration returns the registration's payment or nil.
func (r *Repository) GetByRegistration(ctx context.Context, registrationID primitive.ObjectID) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"registrationId": registrationID})
}

// TransRefUsed reports whether another payment already carries this slip transaction reference.
func (r *Repository) TransRefUsed(ctx context.Context, transRef string, except primitive.ObjectID) (bool, error) {
	n, err := r.col.CountDocuments(ctx,
		bson.M{"slipData.transRef": transRef, "_id": bson.M{"$ne": except}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("count trans ref: %w", err)
	}
	return n > 0, nil
}

// Filter narrows List. Empty fields are ignored.
type Filter struct {
	UserID      *primitive.ObjectID
	OrganizerID *primitive.ObjectID
	CampID      *primitive.ObjectID
	Status      models.PaymentStatus
	Limit       int64
	Skip        int64
}

// List returns payments, newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.Payment, error) {
	filter := bson.M{}
	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.OrganizerID != nil {
		filter["organizerId"] = *f.OrganizerID
	}
	if f.CampID != nil {
		filter["campId"] = *f.CampID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	if f.Skip > 0 {
		opts.SetSkip(f.Skip)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.Payment{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	return list, nil
}

// Transition applies set only if the payment's status is one of from. Extra filter terms
// narrow the match further. Returns nil when nothing matched.
func (r *Repository) Transition(ctx context.Context, id primitive.ObjectID, from []models.PaymentStatus, extra bson.M, set bson.M) (*models.Payment, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	for k, v := range extra {
		filter[k] = v
	}
	set["updatedAt"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var pay models.Payment
	if err := r.col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&pay); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("transition payment: %w", err)
	}
	return &pay, nil
}

// releasable matches payments whose escrow hold may end.
func releasable() bson.A {
	return bson.A{
		bson.M{"status": models.PaymentCompleted, "slipVerified": true},
		bson.M{"status": models.PaymentConfirmed},
	}
}

// DueForRelease returns up to limit payments whose hold ended at or before now.
func (r *Repository) DueForRelease(ctx context.Context, now time.Time, limit int64) ([]models.Payment, error) {
	filter := bson.M{
		"autoReleaseDate": bson.M{"$lte": now},
		"$or":             releasable(),
	}
	opts := options.Find().SetSort(bson.D{{Key: "autoReleaseDate", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find due payments: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.Payment{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode due payments: %w", err)
	}
	return list, nil
}

// MarkReleased releases one due payment. The filter repeats the due conditions so a
// payment is released at most once even with several schedulers running. Returns nil when
// the payment was no longer due.
func (r *Repository) MarkReleased(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Payment, error) {
	filter := bson.M{
		"_id":             id,
		"autoReleaseDate": bson.M{"$lte": now},
		"$or":             releasable(),
	}
	update := bson.M{"$set": bson.M{
		"status":     models.PaymentReleased,
		"releasedAt": now,
		"updatedAt":  now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var pay models.Payment
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&pay); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("release payment: %w", err)
	}
	return &pay, nil
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var pay models.Payment
	if err := r.col.FindOne(ctx, filter).Decode(&pay); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &pay, nil
}
