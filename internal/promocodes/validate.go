package promocodes

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// Quote is the price after applying a promo code.
type Quote struct {
	Code        string  `json:"code"`
	Amount      float64 `json:"amount"`
	Discount    float64 `json:"discount"`
	FinalAmount float64 `json:"finalAmount"`
}

var hundred = decimal.NewFromInt(100)

// Normalize returns the canonical stored form of a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks promo against an order of amount for campID at now and prices it.
// A nil promo is an unknown code. The discount is rounded half-up to a whole unit and
// never exceeds amount.
func Validate(promo *models.PromoCode, amount float64, campID primitive.ObjectID, now time.Time) (*Quote, error) {
	if promo == nil {
		return nil, invalid("Promo code not found")
	}
	if !promo.IsActive {
		return nil, invalid("Promo code is inactive")
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return nil, invalid("Promo code is not valid yet")
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return nil, invalid("Promo code has expired")
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return nil, invalid("Promo code usage limit reached")
	}
	if amount < promo.MinAmount {
		return nil, invalid("Order amount is below the promo minimum")
	}
	if len(promo.ApplicableCamps) > 0 && !appliesTo(promo.ApplicableCamps, campID) {
		return nil, invalid("Promo code does not apply to this camp")
	}

	total := decimal.NewFromFloat(amount)
	discount := Discount(promo, total)
	return &Quote{
		Code:        promo.Code,
		Amount:      amount,
		Discount:    discount.InexactFloat64(),
		FinalAmount: total.Sub(discount).InexactFloat64(),
	}, nil
}

// Discount computes the discount for total without eligibility checks.
func Discount(promo *models.PromoCode, total decimal.Decimal) decimal.Decimal {
	value := decimal.NewFromFloat(promo.DiscountValue)
	var d decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountPercentage:
		d = total.Mul(value).Div(hundred)
		if promo.MaxDiscount > 0 {
			d = decimal.Min(d, decimal.NewFromFloat(promo.MaxDiscount))
		}
	case models.DiscountFixed:
		d = value
	default:
		return decimal.Zero
	}
	d = d.Round(0)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(total) {
		return total
	}
	return d
}

func appliesTo(camps []primitive.ObjectID, campID primitive.ObjectID) bool {
	for _, id := range camps {
		if id == campID {
			return true
		}
	}
	return false
}

func invalid(msg string) error {
	return apperrors.Clone(apperrors.ErrInvalidPromo, msg)
}
