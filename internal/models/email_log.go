package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Email kinds sent by the platform.
const (
	EmailKindOTP                  = "otp"
	EmailKindRegistrationReceived = "registration_received"
	EmailKindRegistrationReviewed = "registration_reviewed"
	EmailKindPaymentVerified      = "payment_verified"
	EmailKindPaymentRejected      = "payment_rejected"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records every delivery attempt made by the worker.
type EmailLog struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind         string             `bson:"kind" json:"kind"`
	Recipient    string             `bson:"recipient" json:"recipient"`
	Subject      string             `bson:"subject,omitempty" json:"subject,omitempty"`
	RefID        string             `bson:"refId,omitempty" json:"refId,omitempty"`
	Status       string             `bson:"status" json:"status"`
	Attempt      int                `bson:"attempt" json:"attempt"`
	ErrorMessage string             `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	SentAt       *time.Time         `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}
