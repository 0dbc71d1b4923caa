package promocodes

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// Store is the promo code persistence the service needs.
type Store interface {
	Create(ctx context.Context, promo *models.PromoCode) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.PromoCode, error)
	GetByCode(ctx context.Context, code string) (*models.PromoCode, error)
	List(ctx context.Context, activeOnly bool) ([]models.PromoCode, error)
	Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.PromoCode, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
	Redeem(ctx context.Context, code string) (*models.PromoCode, error)
	Unredeem(ctx context.Context, code string) error
}

// ValidateInput is the body for POST /promo/validate.
type ValidateInput struct {
	Code   string  `json:"code" binding:"required"`
	Amount float64 `json:"amount" binding:"gte=0"`
	CampID string  `json:"campId"`
}

// PromoInput creates a promo code.
type PromoInput struct {
	Code            string              `json:"code" validate:"required,min=3,max=32,alphanum"`
	Description     string              `json:"description" validate:"max=500"`
	DiscountType    models.DiscountType `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue   float64             `json:"discountValue" validate:"gt=0"`
	MaxDiscount     float64             `json:"maxDiscount" validate:"gte=0"`
	MinAmount       float64             `json:"minAmount" validate:"gte=0"`
	UsageLimit      int                 `json:"usageLimit" validate:"gte=0"`
	ValidFrom       *time.Time          `json:"validFrom"`
	ValidUntil      *time.Time          `json:"validUntil"`
	ApplicableCamps []string            `json:"applicableCamps" validate:"max=100,dive,len=24,hexadecimal"`
	IsActive        *bool               `json:"isActive"`
}

// PromoUpdate changes a promo code. Nil fields are left alone; the code itself is immutable.
type PromoUpdate struct {
	Description     *string              `json:"description" validate:"omitempty,max=500"`
	DiscountType    *models.DiscountType `json:"discountType" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue   *float64             `json:"discountValue" validate:"omitempty,gt=0"`
	MaxDiscount     *float64             `json:"maxDiscount" validate:"omitempty,gte=0"`
	MinAmount       *float64             `json:"minAmount" validate:"omitempty,gte=0"`
	UsageLimit      *int                 `json:"usageLimit" validate:"omitempty,gte=0"`
	ValidFrom       *time.Time           `json:"validFrom"`
	ValidUntil      *time.Time           `json:"validUntil"`
	ApplicableCamps *[]string            `json:"applicableCamps" validate:"omitempty,max=100,dive,len=24,hexadecimal"`
	IsActive        *bool                `json:"isActive"`
}

// Service prices and redeems promo codes and manages them for admins.
type Service struct {
	store     Store
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a promo code service.
func NewService(store Store, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, validator: validate, logger: logger, now: time.Now}
}

// Check prices an order without consuming a use.
func (s *Service) Check(ctx context.Context, in ValidateInput) (*Quote, error) {
	campID, err := optionalID(in.CampID)
	if err != nil {
		return nil, err
	}
	promo, err := s.store.GetByCode(ctx, Normalize(in.Code))
	if err != nil {
		return nil, err
	}
	return Validate(promo, in.Amount, campID, s.now())
}

// Redeem validates code for the order and consumes one use. The returned quote is what the
// payment must charge.
func (s *Service) Redeem(ctx context.Context, code string, amount float64, campID primitive.ObjectID) (*Quote, error) {
	code = Normalize(code)
	promo, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	quote, err := Validate(promo, amount, campID, s.now())
	if err != nil {
		return nil, err
	}
	redeemed, err := s.store.Redeem(ctx, code)
	if err != nil {
		return nil, err
	}
	if redeemed == nil {
		return nil, invalid("Promo code usage limit reached")
	}
	s.logger.Info("promo redeemed", zap.String("code", code), zap.Int("used", redeemed.UsedCount))
	return quote, nil
}

// Release returns a use taken by Redeem. Failures are logged.
func (s *Service) Release(ctx context.Context, code string) {
	if err := s.store.Unredeem(ctx, Normalize(code)); err != nil {
		s.logger.Error("promo release failed", zap.Error(err), zap.String("code", code))
	}
}

// List returns every promo code.
func (s *Service) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.store.List(ctx, false)
}

// Create adds a promo code.
func (s *Service) Create(ctx context.Context, p authz.Principal, in PromoInput) (*models.PromoCode, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if err := checkValue(in.DiscountType, in.DiscountValue); err != nil {
		return nil, err
	}
	if err := checkWindow(in.ValidFrom, in.ValidUntil); err != nil {
		return nil, err
	}
	camps, err := objectIDs(in.ApplicableCamps)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	promo := &models.PromoCode{
		Code:            Normalize(in.Code),
		Description:     strings.TrimSpace(in.Description),
		DiscountType:    in.DiscountType,
		DiscountValue:   in.DiscountValue,
		MaxDiscount:     in.MaxDiscount,
		MinAmount:       in.MinAmount,
		UsageLimit:      in.UsageLimit,
		ValidFrom:       in.ValidFrom,
		ValidUntil:      in.ValidUntil,
		ApplicableCamps: camps,
		IsActive:        in.IsActive == nil || *in.IsActive,
		CreatedBy:       p.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Create(ctx, promo); err != nil {
		return nil, err
	}
	s.logger.Info("promo created", zap.String("code", promo.Code), zap.String("by", p.UserID.Hex()))
	return promo, nil
}

// Update changes a promo code.
func (s *Service) Update(ctx context.Context, id primitive.ObjectID, in PromoUpdate) (*models.PromoCode, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "Promo code not found")
	}

	kind, value := current.DiscountType, current.DiscountValue
	set := bson.M{}
	if in.Description != nil {
		set["description"] = strings.TrimSpace(*in.Description)
	}
	if in.DiscountType != nil {
		kind = *in.DiscountType
		set["discountType"] = kind
	}
	if in.DiscountValue != nil {
		value = *in.DiscountValue
		set["discountValue"] = value
	}
	if err := checkValue(kind, value); err != nil {
		return nil, err
	}
	if in.MaxDiscount != nil {
		set["maxDiscount"] = *in.MaxDiscount
	}
	if in.MinAmount != nil {
		set["minAmount"] = *in.MinAmount
	}
	if in.UsageLimit != nil {
		set["usageLimit"] = *in.UsageLimit
	}
	from, until := current.ValidFrom, current.ValidUntil
	if in.ValidFrom != nil {
		from = in.ValidFrom
		set["validFrom"] = in.ValidFrom
	}
	if in.ValidUntil != nil {
		until = in.ValidUntil
		set["validUntil"] = in.ValidUntil
	}
	if err := checkWindow(from, until); err != nil {
		return nil, err
	}
	if in.ApplicableCamps != nil {
		camps, err := objectIDs(*in.ApplicableCamps)
		if err != nil {
			return nil, err
		}
		set["applicableCamps"] = camps
	}
	if in.IsActive != nil {
		set["isActive"] = *in.IsActive
	}
	if len(set) == 0 {
		return current, nil
	}
	updated, err := s.store.Update(ctx, id, set)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "Promo code not found")
	}
	return updated, nil
}

// Delete removes a promo code.
func (s *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Clone(apperrors.ErrNotFound, "Promo code not found")
	}
	return nil
}

func checkValue(kind models.DiscountType, value float64) error {
	if kind == models.DiscountPercentage && value > 100 {
		return apperrors.Validation("percentage discount cannot exceed 100")
	}
	return nil
}

func checkWindow(from, until *time.Time) error {
	if from != nil && until != nil && until.Before(*from) {
		return apperrors.Validation("validUntil must be after validFrom")
	}
	return nil
}

func objectIDs(hexes []string) ([]primitive.ObjectID, error) {
	if len(hexes) == 0 {
		return nil, nil
	}
	out := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		id, err := primitive.ObjectIDFromHex(h)
		if err != nil {
			return nil, apperrors.Validation("invalid camp id " + h)
		}
		out = append(out, id)
	}
	return out, nil
}

func optionalID(hex string) (primitive.ObjectID, error) {
	if hex == "" {
		return primitive.NilObjectID, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, apperrors.Validation("invalid campId")
	}
	return id, nil
}
