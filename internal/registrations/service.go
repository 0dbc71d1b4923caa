package registrations

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

// Store is the registration persistence the service needs.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Registration, error)
	FindByUserAndCamp(ctx context.Context, userID, campID primitive.ObjectID) (*models.Registration, error)
	List(ctx context.Context, f Filter) ([]models.Registration, error)
	CountByCamp(ctx context.Context, campID primitive.ObjectID) (map[models.RegistrationStatus]int, error)
	Transition(ctx context.Context, id primitive.ObjectID, from []models.RegistrationStatus, set bson.M) (*models.Registration, error)
}

// CampStore reads camps and moves their seat counter.
type CampStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Camp, error)
	TryEnroll(ctx context.Context, id primitive.ObjectID) (*models.Camp, error)
	ReleaseSeat(ctx context.Context, id primitive.ObjectID) (*models.Camp, error)
}

// Notifier sends applicant emails.
type Notifier interface {
	RegistrationReceived(ctx context.Context, reg *models.Registration, camp *models.Camp)
	RegistrationReviewed(ctx context.Context, reg *models.Registration, campName string)
}

// Recorder counts registration outcomes.
type Recorder interface {
	RegistrationAttempt(outcome string)
}

// CreateInput is the registration form.
type CreateInput struct {
	CampID    string          `json:"campId" binding:"required"`
	UserName  string          `json:"userName" binding:"required,max=120"`
	UserEmail string          `json:"userEmail" binding:"required,email"`
	UserPhone string          `json:"userPhone" binding:"omitempty,max=32"`
	Answers   []models.Answer `json:"answers" binding:"omitempty,max=30,dive"`
}

// ListQuery filters the caller's registration list.
type ListQuery struct {
	CampID *primitive.ObjectID
	Status models.RegistrationStatus
	Limit  int64
	Skip   int64
}

// CampRegistrations is the organizer view of a camp's applicants.
type CampRegistrations struct {
	Registrations []models.Registration               `json:"registrations"`
	Counts        map[models.RegistrationStatus]int `json:"counts"`
	Capacity      int                               `json:"capacity"`
	Enrolled      int                               `json:"enrolled"`
}

// Service implements registration creation and its state machine.
type Service struct {
	store    Store
	camps    CampStore
	notifier Notifier
	metrics  Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a registration service. notifier and metrics may be nil.
func NewService(store Store, camps CampStore, notifier Notifier, metrics Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, camps: camps, notifier: notifier, metrics: metrics, logger: logger, now: time.Now}
}

// Create applies the caller to a camp. Checks run in order: the camp exists, a seat is
// free, and the caller has not registered before. The seat is taken atomically before the
// registration is written and handed back if the write fails.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*models.Registration, error) {
	campID, err := primitive.ObjectIDFromHex(in.CampID)
	if err != nil {
		return nil, apperrors.Validation("invalid campId")
	}
	camp, err := s.camps.GetByID(ctx, campID)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	if camp.Enrolled >= camp.Capacity {
		s.record("full")
		return nil, apperrors.ErrCampFull
	}
	existing, err := s.store.FindByUserAndCamp(ctx, p.UserID, campID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.record("duplicate")
		return nil, apperrors.ErrAlreadyRegistered
	}
	if !camp.IsOpen() {
		return nil, apperrors.Validation("Camp is not open for registration")
	}
	now := s.now().UTC()
	if camp.RegistrationDeadline != nil && now.After(*camp.RegistrationDeadline) {
		return nil, apperrors.Validation("Registration deadline has passed")
	}

	enrolled, err := s.camps.TryEnroll(ctx, campID)
	if err != nil {
		return nil, err
	}
	if enrolled == nil {
		s.record("full")
		return nil, apperrors.ErrCampFull
	}

	reg := &models.Registration{
		CampID:    campID,
		UserID:    p.UserID,
		UserName:  strings.TrimSpace(in.UserName),
		UserEmail: strings.ToLower(strings.TrimSpace(in.UserEmail)),
		UserPhone: strings.TrimSpace(in.UserPhone),
		Answers:   in.Answers,
		Status:    models.RegistrationPending,
		AppliedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, reg); err != nil {
		if _, rerr := s.camps.ReleaseSeat(ctx, campID); rerr != nil {
			s.logger.Error("release seat after failed insert", zap.Error(rerr), zap.String("camp_id", campID.Hex()))
		}
		s.record("error")
		return nil, err
	}
	s.record("created")
	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.Hex()),
		zap.String("camp_id", campID.Hex()),
		zap.Int("enrolled", enrolled.Enrolled),
	)
	if s.notifier != nil {
		s.notifier.RegistrationReceived(ctx, reg, camp)
	}
	return reg, nil
}

// Get returns a registration visible to the caller.
func (s *Service) Get(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Registration, error) {
	reg, camp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewRegistration(p, reg, camp) {
		return nil, apperrors.ErrForbidden
	}
	return reg, nil
}

// List returns the caller's registrations; admins see every registration.
func (s *Service) List(ctx context.Context, p authz.Principal, q ListQuery) ([]models.Registration, error) {
	f := Filter{CampID: q.CampID, Status: q.Status, Limit: q.Limit, Skip: q.Skip}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if !p.IsAdmin() {
		f.UserID = &p.UserID
	}
	return s.store.List(ctx, f)
}

// ListForCamp returns a camp's applicants for its organizer or an admin.
func (s *Service) ListForCamp(ctx context.Context, p authz.Principal, campID primitive.ObjectID, status models.RegistrationStatus) (*CampRegistrations, error) {
	camp, err := s.camps.GetByID(ctx, campID)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	if !authz.CanReviewRegistration(p, camp) {
		return nil, apperrors.ErrForbidden
	}
	list, err := s.store.List(ctx, Filter{CampID: &campID, Status: status})
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByCamp(ctx, campID)
	if err != nil {
		return nil, err
	}
	return &CampRegistrations{Registrations: list, Counts: counts, Capacity: camp.Capacity, Enrolled: camp.Enrolled}, nil
}

// Review approves or rejects a pending registration. A rejected applicant gives back the seat.
func (s *Service) Review(ctx context.Context, p authz.Principal, id primitive.ObjectID, status models.RegistrationStatus, note string) (*models.Registration, error) {
	if status != models.RegistrationApproved && status != models.RegistrationRejected {
		return nil, apperrors.Validation("status must be approved or rejected")
	}
	reg, camp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanReviewRegistration(p, camp) {
		return nil, apperrors.ErrForbidden
	}
	now := s.now().UTC()
	set := bson.M{"status": status, "reviewedAt": now, "reviewedBy": p.UserID}
	if note = strings.TrimSpace(note); note != "" {
		set["note"] = note
	}
	updated, err := s.store.Transition(ctx, id, []models.RegistrationStatus{models.RegistrationPending}, set)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Registration is not pending (status: "+string(reg.Status)+")")
	}
	if status == models.RegistrationRejected {
		s.releaseSeat(ctx, reg.CampID)
	}
	if s.notifier != nil && camp != nil {
		s.notifier.RegistrationReviewed(ctx, updated, camp.Name)
	}
	return updated, nil
}

// Confirm lets the applicant accept an approved seat.
func (s *Service) Confirm(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Registration, error) {
	reg, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != models.RegistrationApproved {
		return nil, apperrors.ErrNotApproved
	}
	updated, err := s.store.Transition(ctx, id,
		[]models.RegistrationStatus{models.RegistrationApproved},
		bson.M{"status": models.RegistrationConfirmed, "confirmedAt": s.now().UTC()},
	)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.ErrNotApproved
	}
	return updated, nil
}

// Cancel withdraws a pending or approved registration and frees its seat.
func (s *Service) Cancel(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Registration, error) {
	reg, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Transition(ctx, id,
		[]models.RegistrationStatus{models.RegistrationPending, models.RegistrationApproved},
		bson.M{"status": models.RegistrationCancelled, "cancelledAt": s.now().UTC()},
	)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Only pending or approved registrations can be cancelled (status: "+string(reg.Status)+")")
	}
	s.releaseSeat(ctx, reg.CampID)
	return updated, nil
}

func (s *Service) owned(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, apperrors.ErrRegistrationNotFound
	}
	if reg.UserID != p.UserID && !p.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return reg, nil
}

// load returns the registration and its camp. The camp is nil if it was deleted.
func (s *Service) load(ctx context.Context, id primitive.ObjectID) (*models.Registration, *models.Camp, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if reg == nil {
		return nil, nil, apperrors.ErrRegistrationNotFound
	}
	camp, err := s.camps.GetByID(ctx, reg.CampID)
	if err != nil {
		return nil, nil, err
	}
	return reg, camp, nil
}

func (s *Service) releaseSeat(ctx context.Context, campID primitive.ObjectID) {
	if _, err := s.camps.ReleaseSeat(ctx, campID); err != nil {
		s.logger.Error("release seat failed", zap.Error(err), zap.String("camp_id", campID.Hex()))
	}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RegistrationAttempt(outcome)
	}
}
