package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DiscountType is percentage or fixed.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a discount code. Zero UsageLimit, MinAmount or MaxDiscount mean "no limit".
// An empty ApplicableCamps list applies to every camp.
type PromoCode struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Code            string               `bson:"code" json:"code"`
	Description     string               `bson:"description,omitempty" json:"description,omitempty"`
	DiscountType    DiscountType         `bson:"discountType" json:"discountType"`
	DiscountValue   float64              `bson:"discountValue" json:"discountValue"`
	MaxDiscount     float64              `bson:"maxDiscount,omitempty" json:"maxDiscount,omitempty"`
	MinAmount       float64              `bson:"minAmount,omitempty" json:"minAmount,omitempty"`
	UsageLimit      int                  `bson:"usageLimit,omitempty" json:"usageLimit,omitempty"`
	UsedCount       int                  `bson:"usedCount" json:"usedCount"`
	ValidFrom       *time.Time           `bson:"validFrom,omitempty" json:"validFrom,omitempty"`
	ValidUntil      *time.Time           `bson:"validUntil,omitempty" json:"validUntil,omitempty"`
	ApplicableCamps []primitive.ObjectID `bson:"applicableCamps,omitempty" json:"applicableCamps,omitempty"`
	IsActive        bool                 `bson:"isActive" json:"isActive"`
	CreatedBy       primitive.ObjectID   `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt" json:"updatedAt"`
}
