package registrations

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// CheckInResult is returned by ticket verification.
type CheckInResult struct {
	Success          bool                 `json:"success"`
	AlreadyCheckedIn bool                 `json:"alreadyCheckedIn,omitempty"`
	CheckedInAt      *time.Time           `json:"checkedInAt,omitempty"`
	Registration     *models.Registration `json:"registration,omitempty"`
}

var checkInFrom = []models.RegistrationStatus{models.RegistrationApproved, models.RegistrationPending}

// CheckIn marks the ticket holder as attended. Scanning an attended ticket again reports the
// original check-in time and writes nothing.
func (s *Service) CheckIn(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*CheckInResult, error) {
	reg, camp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanReviewRegistration(p, camp) {
		return nil, apperrors.ErrForbidden
	}
	if reg.Status == models.RegistrationAttended {
		return &CheckInResult{Success: true, AlreadyCheckedIn: true, CheckedInAt: reg.CheckedInAt, Registration: reg}, nil
	}
	if !canCheckIn(reg.Status) {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Registration cannot be checked in (status: "+string(reg.Status)+")")
	}

	updated, err := s.store.Transition(ctx, id, checkInFrom, bson.M{
		"status":      models.RegistrationAttended,
		"checkedInAt": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Lost a race with another scanner or a cancel; report what is there now.
		current, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == models.RegistrationAttended {
			return &CheckInResult{Success: true, AlreadyCheckedIn: true, CheckedInAt: current.CheckedInAt, Registration: current}, nil
		}
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Registration cannot be checked in")
	}
	s.logger.Info("checked in",
		zap.String("registration_id", id.Hex()),
		zap.String("camp_id", updated.CampID.Hex()),
		zap.String("by", p.UserID.Hex()),
	)
	return &CheckInResult{Success: true, CheckedInAt: updated.CheckedInAt, Registration: updated}, nil
}

func canCheckIn(status models.RegistrationStatus) bool {
	for _, s := range checkInFrom {
		if s == status {
			return true
		}
	}
	return false
}
