// Package authz is the single place that decides who may do what.
package authz

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/models"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID primitive.ObjectID
	Email  string
	Role   models.Role
}

// IsAdmin reports whether the caller is an admin.
func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// Action names a guarded operation.
type Action string

const (
	ActionCampCreate         Action = "camp:create"
	ActionCampApprove        Action = "camp:approve"
	ActionRegistrationReview Action = "registration:review"
	ActionCheckIn            Action = "registration:checkin"
	ActionPaymentReview      Action = "payment:review"
	ActionPaymentConfirm     Action = "payment:confirm"
	ActionPaymentRelease     Action = "payment:release"
	ActionPromoManage        Action = "promo:manage"
	ActionUserManage         Action = "user:manage"
)

var policy = map[Action][]models.Role{
	ActionCampCreate:         {models.RoleOrganizer, models.RoleAdmin},
	ActionCampApprove:        {models.RoleAdmin},
	ActionRegistrationReview: {models.RoleOrganizer, models.RoleAdmin},
	ActionCheckIn:            {models.RoleOrganizer, models.RoleAdmin},
	ActionPaymentReview:      {models.RoleOrganizer, models.RoleAdmin},
	ActionPaymentConfirm:     {models.RoleAdmin},
	ActionPaymentRelease:     {models.RoleAdmin},
	ActionPromoManage:        {models.RoleAdmin},
	ActionUserManage:         {models.RoleAdmin},
}

// Allowed reports whether role may perform action. Unknown actions are denied.
func Allowed(role models.Role, action Action) bool {
	for _, r := range policy[action] {
		if r == role {
			return true
		}
	}
	return false
}

// CanEditCamp: admins, or the organizer who owns the camp.
func CanEditCamp(p Principal, camp *models.Camp) bool {
	if camp == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.Role == models.RoleOrganizer && camp.OrganizerID == p.UserID
}

// CanReviewRegistration covers approve/reject and check-in on registrations of camp.
func CanReviewRegistration(p Principal, camp *models.Camp) bool {
	return CanEditCamp(p, camp)
}

// CanViewRegistration: the applicant, the camp's organizer, or an admin.
func CanViewRegistration(p Principal, reg *models.Registration, camp *models.Camp) bool {
	if reg == nil {
		return false
	}
	if p.IsAdmin() || reg.UserID == p.UserID {
		return true
	}
	return CanEditCamp(p, camp)
}

// CanViewPayment: the payer, the receiving organizer, or an admin.
func CanViewPayment(p Principal, pay *models.Payment) bool {
	if pay == nil {
		return false
	}
	return p.IsAdmin() || pay.UserID == p.UserID || pay.OrganizerID == p.UserID
}

// CanReviewPayment covers manual slip approval and rejection.
func CanReviewPayment(p Principal, pay *models.Payment) bool {
	if pay == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.Role == models.RoleOrganizer && pay.OrganizerID == p.UserID
}
