package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CampStatus is the listing lifecycle of a camp.
type CampStatus string

const (
	CampStatusDraft     CampStatus = "draft"
	CampStatusPending   CampStatus = "pending"
	CampStatusActive    CampStatus = "active"
	CampStatusFull      CampStatus = "full"
	CampStatusClosed    CampStatus = "closed"
	CampStatusCancelled CampStatus = "cancelled"
	CampStatusRejected  CampStatus = "rejected"
)

// Camp is an organizer-listed event with capacity and schedule.
// StartDateText/EndDateText are display strings; StartDate/EndDate are the parsed values when known.
type Camp struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name                 string              `bson:"name" json:"name"`
	Slug                 string              `bson:"slug" json:"slug"`
	Description          string              `bson:"description" json:"description"`
	Category             string              `bson:"category,omitempty" json:"category,omitempty"`
	ImageURL             string              `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Location             string              `bson:"location" json:"location"`
	StartDateText        string              `bson:"startDateText,omitempty" json:"startDateText,omitempty"`
	EndDateText          string              `bson:"endDateText,omitempty" json:"endDateText,omitempty"`
	StartDate            *time.Time          `bson:"startDate,omitempty" json:"startDate,omitempty"`
	EndDate              *time.Time          `bson:"endDate,omitempty" json:"endDate,omitempty"`
	RegistrationDeadline *time.Time          `bson:"registrationDeadline,omitempty" json:"registrationDeadline,omitempty"`
	Capacity             int                 `bson:"capacity" json:"capacity"`
	Enrolled             int                 `bson:"enrolled" json:"enrolled"`
	Price                float64             `bson:"price" json:"price"`
	Status               CampStatus          `bson:"status" json:"status"`
	Questions            []string            `bson:"questions,omitempty" json:"questions,omitempty"`
	OrganizerID          primitive.ObjectID  `bson:"organizerId" json:"organizerId"`
	OrganizerName        string              `bson:"organizerName,omitempty" json:"organizerName,omitempty"`
	OrganizerContact     string              `bson:"organizerContact,omitempty" json:"organizerContact,omitempty"`
	Reviews              []Review            `bson:"reviews,omitempty" json:"reviews,omitempty"`
	AvgRating            float64             `bson:"avgRating" json:"avgRating"`
	RatingBreakdown      map[string]int      `bson:"ratingBreakdown,omitempty" json:"ratingBreakdown,omitempty"`
	VerificationScore    *int                `bson:"verificationScore,omitempty" json:"verificationScore,omitempty"`
	RejectionReason      string              `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
	ReviewedBy           *primitive.ObjectID `bson:"reviewedBy,omitempty" json:"reviewedBy,omitempty"`
	ReviewedAt           *time.Time          `bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	ApprovedAt           *time.Time          `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	CreatedAt            time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsOpen reports whether the camp accepts registrations.
func (c *Camp) IsOpen() bool {
	return c.Status == CampStatusActive
}

// Review is an attendee rating embedded in a camp.
type Review struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	UserName  string             `bson:"userName" json:"userName"`
	Rating    int                `bson:"rating" json:"rating"`
	Comment   string             `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
