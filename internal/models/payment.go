package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentStatus for payments.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentReleased  PaymentStatus = "released"
	PaymentCancelled PaymentStatus = "cancelled"
)

// SlipData is what the slip recognition service extracted from an uploaded slip.
type SlipData struct {
	TransRef        string    `bson:"transRef,omitempty" json:"transRef,omitempty"`
	Amount          float64   `bson:"amount" json:"amount"`
	TransferredAt   time.Time `bson:"transferredAt" json:"transferredAt"`
	ReceiverName    string    `bson:"receiverName,omitempty" json:"receiverName,omitempty"`
	ReceiverAccount string    `bson:"receiverAccount,omitempty" json:"receiverAccount,omitempty"`
	SenderName      string    `bson:"senderName,omitempty" json:"senderName,omitempty"`
}

// Payment is the monetary record tied 1:1 to a registration. Funds are held in escrow
// until AutoReleaseDate.
type Payment struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RegistrationID       primitive.ObjectID  `bson:"registrationId" json:"registrationId"`
	CampID               primitive.ObjectID  `bson:"campId" json:"campId"`
	UserID               primitive.ObjectID  `bson:"userId" json:"userId"`
	OrganizerID          primitive.ObjectID  `bson:"organizerId" json:"organizerId"`
	Amount               float64             `bson:"amount" json:"amount"`
	Discount             float64             `bson:"discount" json:"discount"`
	FinalAmount          float64             `bson:"finalAmount" json:"finalAmount"`
	PromoCode            string              `bson:"promoCode,omitempty" json:"promoCode,omitempty"`
	Status               PaymentStatus       `bson:"status" json:"status"`
	SlipURL              string              `bson:"slipUrl,omitempty" json:"slipUrl,omitempty"`
	PaidAt               *time.Time          `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	AutoReleaseDate      *time.Time          `bson:"autoReleaseDate,omitempty" json:"autoReleaseDate,omitempty"`
	SlipVerified         bool                `bson:"slipVerified" json:"slipVerified"`
	RequiresManualReview bool                `bson:"requiresManualReview" json:"requiresManualReview"`
	VerificationIssues   []string            `bson:"verificationIssues,omitempty" json:"verificationIssues,omitempty"`
	SlipData             *SlipData           `bson:"slipData,omitempty" json:"slipData,omitempty"`
	VerifiedBy           *primitive.ObjectID `bson:"verifiedBy,omitempty" json:"verifiedBy,omitempty"`
	VerifiedAt           *time.Time          `bson:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`
	RejectedBy           *primitive.ObjectID `bson:"rejectedBy,omitempty" json:"rejectedBy,omitempty"`
	RejectedAt           *time.Time          `bson:"rejectedAt,omitempty" json:"rejectedAt,omitempty"`
	RejectionReason      string              `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
	ConfirmedAt          *time.Time          `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	ReleasedAt           *time.Time          `bson:"releasedAt,omitempty" json:"releasedAt,omitempty"`
	CreatedAt            time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time           `bson:"updatedAt" json:"updatedAt"`
}
