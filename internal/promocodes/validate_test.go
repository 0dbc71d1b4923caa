package promocodes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

func save10() *models.PromoCode {
	return &models.PromoCode{
		Code:          "SAVE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: 10,
		MaxDiscount:   200,
		IsActive:      true,
	}
}

func TestValidate_PercentageCapped(t *testing.T) {
	q, err := Validate(save10(), 3000, primitive.NilObjectID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 200.0, q.Discount)
	assert.Equal(t, 2800.0, q.FinalAmount)
	assert.Equal(t, "SAVE10", q.Code)
}

func TestValidate_Rejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)
	earlier := now.Add(-24 * time.Hour)
	campA, campB := primitive.NewObjectID(), primitive.NewObjectID()

	tests := []struct {
		name   string
		mutate func(p *models.PromoCode)
		amount float64
		camp   primitive.ObjectID
	}{
		{"inactive", func(p *models.PromoCode) { p.IsActive = false }, 1000, campA},
		{"not started", func(p *models.PromoCode) { p.ValidFrom = &later }, 1000, campA},
		{"expired", func(p *models.PromoCode) { p.ValidUntil = &earlier }, 1000, campA},
		{"exhausted", func(p *models.PromoCode) { p.UsageLimit = 5; p.UsedCount = 5 }, 1000, campA},
		{"below minimum", func(p *models.PromoCode) { p.MinAmount = 1500 }, 1000, campA},
		{"other camp", func(p *models.PromoCode) { p.ApplicableCamps = []primitive.ObjectID{campB} }, 1000, campA},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promo := save10()
			tt.mutate(promo)
			_, err := Validate(promo, tt.amount, tt.camp, now)
			assert.ErrorIs(t, err, apperrors.ErrInvalidPromo)
		})
	}

	_, err := Validate(nil, 1000, campA, now)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPromo)
}

func TestValidate_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	camp := primitive.NewObjectID()
	promo := save10()
	promo.ValidFrom = &now
	promo.ValidUntil = &now
	promo.MinAmount = 1000
	promo.UsageLimit = 5
	promo.UsedCount = 4
	promo.ApplicableCamps = []primitive.ObjectID{camp}

	q, err := Validate(promo, 1000, camp, now)
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Discount)
	assert.Equal(t, 900.0, q.FinalAmount)
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name  string
		promo models.PromoCode
		total string
		want  string
	}{
		{"percent rounds half up", models.PromoCode{DiscountType: models.DiscountPercentage, DiscountValue: 15}, "1003", "150"},
		{"percent exact half", models.PromoCode{DiscountType: models.DiscountPercentage, DiscountValue: 10}, "1005", "101"},
		{"percent uncapped", models.PromoCode{DiscountType: models.DiscountPercentage, DiscountValue: 10}, "3000", "300"},
		{"fixed", models.PromoCode{DiscountType: models.DiscountFixed, DiscountValue: 250}, "3000", "250"},
		{"fixed larger than total", models.PromoCode{DiscountType: models.DiscountFixed, DiscountValue: 500}, "300", "300"},
		{"hundred percent", models.PromoCode{DiscountType: models.DiscountPercentage, DiscountValue: 100}, "1999", "1999"},
		{"unknown type", models.PromoCode{DiscountType: "bogus", DiscountValue: 10}, "1000", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(&tt.promo, decimal.RequireFromString(tt.total))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "SAVE10", Normalize("  save10 "))
}
