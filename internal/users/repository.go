package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// Repository handles user persistence in the users collection.
type Repository struct {
	col *mongo.Collection
}

// NewRepository creates a users repository.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{col: db.Collection("users")}
}

// EnsureIndexes creates the unique email index.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("users_role_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	return nil
}

// Create inserts u and sets its ID. A duplicate email yields ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	u.ID = primitive.NilObjectID
	u.CreatedAt = now
	u.UpdatedAt = now
	res, err := r.col.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID returns the user or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail returns the user or nil when it does not exist. email must already be normalized.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *Repository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// ListFilter narrows the admin user listing.
type ListFilter struct {
	Role   models.Role
	Search string
	Limit  int64
	Skip   int64
}

// List returns users newest first plus the total matching count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.User, int64, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{bson.M{"email": rx}, bson.M{"name": rx}}
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
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
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	list := []models.User{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, fmt.Errorf("decode users: %w", err)
	}
	return list, total, nil
}

// Update applies set to the user and returns the updated document, or nil when missing.
func (r *Repository) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.User, error) {
	set["updatedAt"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return &u, nil
}

// SetBanned flips the ban flag for a non-admin user. Returns nil when no non-admin user matched.
func (r *Repository) SetBanned(ctx context.Context, id primitive.ObjectID, banned bool) (*models.User, error) {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"isBanned": banned, "updatedAt": now}}
	if banned {
		update["$set"].(bson.M)["bannedAt"] = now
	} else {
		update["$unset"] = bson.M{"bannedAt": ""}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	filter := bson.M{"_id": id, "role": bson.M{"$ne": models.RoleAdmin}}
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("ban user: %w", err)
	}
	return &u, nil
}

// DeleteNonAdmin removes a user unless it is an admin. Reports whether a document was deleted.
func (r *Repository) DeleteNonAdmin(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "role": bson.M{"$ne": models.RoleAdmin}})
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return res.DeletedCount > 0, nil
}
