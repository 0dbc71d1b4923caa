package auth

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

// OTPRepository persists one-time codes in the otps collection.
type OTPRepository struct {
	col *mongo.Collection
}

// NewOTPRepository creates an OTP repository.
func NewOTPRepository(db *mongo.Database) *OTPRepository {
	return &OTPRepository{col: db.Collection("otps")}
}

// EnsureIndexes creates the lookup index and the TTL index that purges expired codes.
func (r *OTPRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("otps_email_created"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("otps_expires_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("otps indexes: %w", err)
	}
	return nil
}

// Create inserts a new code.
func (r *OTPRepository) Create(ctx context.Context, otp *models.OTP) error {
	otp.ID = primitive.NilObjectID
	res, err := r.col.InsertOne(ctx, otp)
	if err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}
	otp.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// InvalidateActive marks every unused code for email as used.
func (r *OTPRepository) InvalidateActive(ctx context.Context, email string) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{"email": email, "used": false},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return fmt.Errorf("invalidate otps: %w", err)
	}
	return nil
}

// Latest returns the newest unused code for email, or nil.
func (r *OTPRepository) Latest(ctx context.Context, email string) (*models.OTP, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var otp models.OTP
	if err := r.col.FindOne(ctx, bson.M{"email": email, "used": false}, opts).Decode(&otp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find otp: %w", err)
	}
	return &otp, nil
}

// TakeAttempt counts one guess against the code while fewer than max were made. It reports
// false once the budget is spent or the code is used.
func (r *OTPRepository) TakeAttempt(ctx context.Context, id primitive.ObjectID, max int) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "used": false, "attempts": bson.M{"$lt": max}},
		bson.M{"$inc": bson.M{"attempts": 1}},
	)
	if err != nil {
		return false, fmt.Errorf("take otp attempt: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// Consume marks the code used. It reports false when another request consumed it first.
func (r *OTPRepository) Consume(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "used": false, "expiresAt": bson.M{"$gt": time.Now().UTC()}},
		bson.M{"$set": bson.M{"used": true}},
	)
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return res.ModifiedCount > 0, nil
}
