package users

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// Store is the persistence the user service needs.
type Store interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	List(ctx context.Context, f ListFilter) ([]models.User, int64, error)
	Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.User, error)
	SetBanned(ctx context.Context, id primitive.ObjectID, banned bool) (*models.User, error)
	DeleteNonAdmin(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// ProfileInput holds the self-editable profile fields. Nil fields are left unchanged.
type ProfileInput struct {
	Name         *string `json:"name" binding:"omitempty,min=1,max=120"`
	Phone        *string `json:"phone" binding:"omitempty,max=32"`
	AvatarURL    *string `json:"avatarUrl" binding:"omitempty,url"`
	Bio          *string `json:"bio" binding:"omitempty,max=1000"`
	Organization *string `json:"organization" binding:"omitempty,max=200"`
	Address      *string `json:"address" binding:"omitempty,max=500"`
}

// Service implements profile and admin user management.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a user service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Get returns a user or ErrUserNotFound.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of in to the caller's own profile.
func (s *Service) UpdateProfile(ctx context.Context, id primitive.ObjectID, in ProfileInput) (*models.User, error) {
	set := bson.M{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.Validation("name cannot be empty")
		}
		set["name"] = name
	}
	if in.Phone != nil {
		set["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.AvatarURL != nil {
		set["avatarUrl"] = *in.AvatarURL
	}
	if in.Bio != nil {
		set["bio"] = *in.Bio
	}
	if in.Organization != nil {
		set["organization"] = strings.TrimSpace(*in.Organization)
	}
	if in.Address != nil {
		set["address"] = strings.TrimSpace(*in.Address)
	}
	if len(set) == 0 {
		return s.Get(ctx, id)
	}
	u, err := s.store.Update(ctx, id, set)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

// List returns users for the admin console.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.User, int64, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, apperrors.Validation("invalid role")
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.store.List(ctx, f)
}

// ChangeRole sets the role of another user.
func (s *Service) ChangeRole(ctx context.Context, actor authz.Principal, id primitive.ObjectID, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.Validation("invalid role")
	}
	if actor.UserID == id {
		return nil, apperrors.Validation("cannot change your own role")
	}
	u, err := s.store.Update(ctx, id, bson.M{"role": role})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}
	s.logger.Info("user role changed",
		zap.String("user_id", id.Hex()),
		zap.String("role", string(role)),
		zap.String("by", actor.UserID.Hex()),
	)
	return u, nil
}

// ToggleBan bans an unbanned user and unbans a banned one. Admins are protected.
func (s *Service) ToggleBan(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == models.RoleAdmin {
		return nil, apperrors.ErrAdminProtected
	}
	updated, err := s.store.SetBanned(ctx, id, !u.IsBanned)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// promoted to admin or deleted since the read
		return nil, apperrors.ErrAdminProtected
	}
	s.logger.Info("user ban toggled", zap.String("user_id", id.Hex()), zap.Bool("banned", updated.IsBanned))
	return updated, nil
}

// Delete removes a non-admin user.
func (s *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.Role == models.RoleAdmin {
		return apperrors.ErrAdminProtected
	}
	deleted, err := s.store.DeleteNonAdmin(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.ErrAdminProtected
	}
	s.logger.Info("user deleted", zap.String("user_id", id.Hex()))
	return nil
}
