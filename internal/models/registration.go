package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RegistrationStatus is a registration's position in the application flow.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationApproved  RegistrationStatus = "approved"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationAttended  RegistrationStatus = "attended"
	RegistrationRejected  RegistrationStatus = "rejected"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Answer is a response to one of the camp's application questions.
type Answer struct {
	Question string `bson:"question" json:"question"`
	Answer   string `bson:"answer" json:"answer"`
}

// Registration is a user's application to a camp.
type Registration struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	CampID      primitive.ObjectID  `bson:"campId" json:"campId"`
	UserID      primitive.ObjectID  `bson:"userId" json:"userId"`
	UserName    string              `bson:"userName" json:"userName"`
	UserEmail   string              `bson:"userEmail" json:"userEmail"`
	UserPhone   string              `bson:"userPhone,omitempty" json:"userPhone,omitempty"`
	Answers     []Answer            `bson:"answers,omitempty" json:"answers,omitempty"`
	Status      RegistrationStatus  `bson:"status" json:"status"`
	Note        string              `bson:"note,omitempty" json:"note,omitempty"`
	AppliedAt   time.Time           `bson:"appliedAt" json:"appliedAt"`
	ReviewedAt  *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	ReviewedBy  *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ConfirmedAt *time.Time          `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	CheckedInAt *time.Time          `bson:"checkedInAt,omitempty" json:"checkedInAt,omitempty"`
	CancelledAt *time.Time          `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// HoldsSeat reports whether the registration counts against camp capacity.
func (r *Registration) HoldsSeat() bool {
	switch r.Status {
	case RegistrationRejected, RegistrationCancelled:
		return false
	}
	return true
}
