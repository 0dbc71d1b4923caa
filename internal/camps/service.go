package camps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

const maxSlugAttempts = 20

// Store is the persistence the camp service needs.
type Store interface {
	Create(ctx context.Context, camp *models.Camp) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Camp, error)
	GetBySlug(ctx context.Context, slug string) (*models.Camp, error)
	List(ctx context.Context, f ListFilter) ([]models.Camp, int64, error)
	Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Camp, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
	SetReviewOutcome(ctx context.Context, id primitive.ObjectID, o ReviewOutcome) (*models.Camp, error)
	AddReview(ctx context.Context, id primitive.ObjectID, review models.Review) (*models.Camp, error)
}

// RegistrationLookup finds a user's registration for a camp.
type RegistrationLookup interface {
	FindByUserAndCamp(ctx context.Context, userID, campID primitive.ObjectID) (*models.Registration, error)
}

// CampInput is the create payload.
type CampInput struct {
	Name                 string     `json:"name" validate:"required,max=200"`
	Description          string     `json:"description" validate:"max=20000"`
	Category             string     `json:"category" validate:"max=100"`
	ImageURL             string     `json:"imageUrl" validate:"omitempty,url"`
	Location             string     `json:"location" validate:"max=300"`
	StartDateText        string     `json:"startDateText" validate:"max=100"`
	EndDateText          string     `json:"endDateText" validate:"max=100"`
	StartDate            *time.Time `json:"startDate"`
	EndDate              *time.Time `json:"endDate"`
	RegistrationDeadline *time.Time `json:"registrationDeadline"`
	Capacity             int        `json:"capacity" validate:"gte=0,lte=100000"`
	Price                float64    `json:"price" validate:"gte=0"`
	Questions            []string   `json:"questions" validate:"max=30,dive,max=500"`
	OrganizerName        string     `json:"organizerName" validate:"max=200"`
	OrganizerContact     string     `json:"organizerContact" validate:"max=200"`
}

// CampUpdate is the edit payload. Nil fields are left unchanged.
type CampUpdate struct {
	Name                 *string            `json:"name" validate:"omitempty,min=1,max=200"`
	Description          *string            `json:"description" validate:"omitempty,max=20000"`
	Category             *string            `json:"category" validate:"omitempty,max=100"`
	ImageURL             *string            `json:"imageUrl" validate:"omitempty,url"`
	Location             *string            `json:"location" validate:"omitempty,max=300"`
	StartDateText        *string            `json:"startDateText" validate:"omitempty,max=100"`
	EndDateText          *string            `json:"endDateText" validate:"omitempty,max=100"`
	StartDate            *time.Time         `json:"startDate"`
	EndDate              *time.Time         `json:"endDate"`
	RegistrationDeadline *time.Time         `json:"registrationDeadline"`
	Capacity             *int               `json:"capacity" validate:"omitempty,gte=0,lte=100000"`
	Price                *float64           `json:"price" validate:"omitempty,gte=0"`
	Questions            []string           `json:"questions" validate:"omitempty,max=30,dive,max=500"`
	OrganizerName        *string            `json:"organizerName" validate:"omitempty,max=200"`
	OrganizerContact     *string            `json:"organizerContact" validate:"omitempty,max=200"`
	Status               *models.CampStatus `json:"status"`
}

// ListQuery is the public listing query.
type ListQuery struct {
	Mine     bool
	Status   models.CampStatus
	Category string
	Search   string
	Limit    int64
	Skip     int64
}

// ApprovalAction is the admin decision on a pending camp.
type ApprovalAction string

const (
	ActionApprove ApprovalAction = "approve"
	ActionReject  ApprovalAction = "reject"
)

// ApprovalResult is returned from Approve.
type ApprovalResult struct {
	Camp         *models.Camp `json:"camp"`
	Verification Verification `json:"verification"`
}

// ReviewInput is a rating left by an attendee.
type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Service implements camp management, approval and reviews.
type Service struct {
	store     Store
	regs      RegistrationLookup
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a camp service.
func NewService(store Store, regs RegistrationLookup, validate *validator.Validate, logger *zap.Logger) *Service {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, regs: regs, validator: validate, logger: logger, now: time.Now}
}

// Create lists a new camp owned by the caller. It starts pending admin approval.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CampInput) (*models.Camp, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	base, err := Slugify(in.Name)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	camp := &models.Camp{
		Name:                 strings.TrimSpace(in.Name),
		Description:          strings.TrimSpace(in.Description),
		Category:             strings.TrimSpace(in.Category),
		ImageURL:             in.ImageURL,
		Location:             strings.TrimSpace(in.Location),
		StartDateText:        in.StartDateText,
		EndDateText:          in.EndDateText,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		RegistrationDeadline: in.RegistrationDeadline,
		Capacity:             in.Capacity,
		Price:                in.Price,
		Status:               models.CampStatusPending,
		Questions:            in.Questions,
		OrganizerID:          p.UserID,
		OrganizerName:        strings.TrimSpace(in.OrganizerName),
		OrganizerContact:     strings.TrimSpace(in.OrganizerContact),
		RatingBreakdown:      map[string]int{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for i := 1; i <= maxSlugAttempts; i++ {
		camp.Slug = base
		if i > 1 {
			camp.Slug = fmt.Sprintf("%s-%d", base, i)
		}
		err = s.store.Create(ctx, camp)
		if err == nil {
			s.logger.Info("camp created", zap.String("camp_id", camp.ID.Hex()), zap.String("slug", camp.Slug))
			return camp, nil
		}
		if !errors.Is(err, ErrSlugTaken) {
			return nil, err
		}
	}
	return nil, apperrors.Clone(apperrors.ErrConflict, "could not allocate a unique slug")
}

// Get loads a camp by id or slug. Camps that are not publicly listed are only visible to
// their organizer and admins.
func (s *Service) Get(ctx context.Context, viewer *authz.Principal, idOrSlug string) (*models.Camp, error) {
	camp, err := s.lookup(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !isPublic(camp.Status) && (viewer == nil || !authz.CanEditCamp(*viewer, camp)) {
		return nil, apperrors.ErrCampNotFound
	}
	return camp, nil
}

// List returns public camps, or every status for admins and for an organizer's own camps.
func (s *Service) List(ctx context.Context, viewer *authz.Principal, q ListQuery) ([]models.Camp, int64, error) {
	f := ListFilter{Category: q.Category, Search: q.Search, Limit: q.Limit, Skip: q.Skip}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	switch {
	case q.Mine:
		if viewer == nil {
			return nil, 0, apperrors.ErrUnauthorized
		}
		f.OrganizerID = &viewer.UserID
		if q.Status != "" {
			f.Statuses = []models.CampStatus{q.Status}
		}
	case viewer != nil && viewer.IsAdmin():
		if q.Status != "" {
			f.Statuses = []models.CampStatus{q.Status}
		}
	default:
		f.Statuses = []models.CampStatus{models.CampStatusActive, models.CampStatusFull}
		if q.Status == models.CampStatusActive || q.Status == models.CampStatusFull {
			f.Statuses = []models.CampStatus{q.Status}
		}
	}
	return s.store.List(ctx, f)
}

// Update edits a camp owned by the caller.
func (s *Service) Update(ctx context.Context, p authz.Principal, id primitive.ObjectID, in CampUpdate) (*models.Camp, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	camp, err := s.editable(ctx, p, id)
	if err != nil {
		return nil, err
	}

	set := bson.M{}
	putString(set, "name", in.Name)
	slugBase := ""
	if in.Name != nil && strings.TrimSpace(*in.Name) != camp.Name {
		base, err := Slugify(*in.Name)
		if err != nil {
			return nil, err
		}
		if !slugDerivesFrom(camp.Slug, base) {
			slugBase = base
		}
	}
	putString(set, "description", in.Description)
	putString(set, "category", in.Category)
	putString(set, "imageUrl", in.ImageURL)
	putString(set, "location", in.Location)
	putString(set, "startDateText", in.StartDateText)
	putString(set, "endDateText", in.EndDateText)
	putString(set, "organizerName", in.OrganizerName)
	putString(set, "organizerContact", in.OrganizerContact)
	if in.StartDate != nil {
		set["startDate"] = in.StartDate
	}
	if in.EndDate != nil {
		set["endDate"] = in.EndDate
	}
	if in.RegistrationDeadline != nil {
		set["registrationDeadline"] = in.RegistrationDeadline
	}
	if in.Price != nil {
		set["price"] = *in.Price
	}
	if in.Questions != nil {
		set["questions"] = in.Questions
	}

	capacity := camp.Capacity
	if in.Capacity != nil {
		if *in.Capacity < camp.Enrolled {
			return nil, apperrors.Validation(fmt.Sprintf("capacity cannot be below the %d seats already taken", camp.Enrolled))
		}
		capacity = *in.Capacity
		set["capacity"] = capacity
	}

	status := camp.Status
	if in.Status != nil {
		next, err := nextStatus(p, camp, *in.Status)
		if err != nil {
			return nil, err
		}
		status = next
	}
	if camp.Status == models.CampStatusRejected && !p.IsAdmin() && in.Status == nil {
		// edited after rejection: back into the approval queue
		status = models.CampStatusPending
	}
	switch {
	case status == models.CampStatusActive && capacity <= camp.Enrolled:
		status = models.CampStatusFull
	case status == models.CampStatusFull && capacity > camp.Enrolled:
		status = models.CampStatusActive
	}
	if status != camp.Status {
		set["status"] = status
	}
	if len(set) == 0 {
		return camp, nil
	}
	return s.save(ctx, id, set, slugBase)
}

// save writes set. A non-empty slugBase renames the slug, suffixing it on collision like Create.
func (s *Service) save(ctx context.Context, id primitive.ObjectID, set bson.M, slugBase string) (*models.Camp, error) {
	attempts := 1
	if slugBase != "" {
		attempts = maxSlugAttempts
	}
	for i := 1; i <= attempts; i++ {
		if slugBase != "" {
			set["slug"] = slugBase
			if i > 1 {
				set["slug"] = fmt.Sprintf("%s-%d", slugBase, i)
			}
		}
		updated, err := s.store.Update(ctx, id, set)
		if errors.Is(err, ErrSlugTaken) && slugBase != "" {
			continue
		}
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return nil, apperrors.ErrCampNotFound
		}
		if slugBase != "" {
			s.logger.Info("camp slug changed", zap.String("camp_id", id.Hex()), zap.String("slug", updated.Slug))
		}
		return updated, nil
	}
	return nil, apperrors.Clone(apperrors.ErrConflict, "could not allocate a unique slug")
}

// slugDerivesFrom reports whether slug is base or base with a numeric suffix.
func slugDerivesFrom(slug, base string) bool {
	if slug == base {
		return true
	}
	rest, ok := strings.CutPrefix(slug, base+"-")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Delete removes a camp. Organizers cannot delete a camp that still has seats taken.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id primitive.ObjectID) error {
	camp, err := s.editable(ctx, p, id)
	if err != nil {
		return err
	}
	if camp.Enrolled > 0 && !p.IsAdmin() {
		return apperrors.Validation("camp has registrations; cancel it instead")
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrCampNotFound
	}
	s.logger.Info("camp deleted", zap.String("camp_id", id.Hex()), zap.String("by", p.UserID.Hex()))
	return nil
}

// SetImage stores the uploaded image URL on the camp.
func (s *Service) SetImage(ctx context.Context, p authz.Principal, id primitive.ObjectID, url string) (*models.Camp, error) {
	if _, err := s.editable(ctx, p, id); err != nil {
		return nil, err
	}
	camp, err := s.store.Update(ctx, id, bson.M{"imageUrl": url})
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	return camp, nil
}

// CheckEditable returns the camp if the caller may manage it.
func (s *Service) CheckEditable(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Camp, error) {
	return s.editable(ctx, p, id)
}

// Approve applies the admin decision to a pending camp. The verification score is
// returned for information only.
func (s *Service) Approve(ctx context.Context, p authz.Principal, id primitive.ObjectID, action ApprovalAction, reason string) (*ApprovalResult, error) {
	if !p.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	var status models.CampStatus
	switch action {
	case ActionApprove:
		status = models.CampStatusActive
		reason = ""
	case ActionReject:
		status = models.CampStatusRejected
		reason = strings.TrimSpace(reason)
	default:
		return nil, apperrors.Validation("action must be approve or reject")
	}
	camp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	if camp.Status != models.CampStatusPending {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Camp is not pending approval")
	}
	v := Verify(camp, s.now())
	if status == models.CampStatusActive && camp.Capacity > 0 && camp.Enrolled >= camp.Capacity {
		status = models.CampStatusFull
	}
	updated, err := s.store.SetReviewOutcome(ctx, id, ReviewOutcome{
		Status:     status,
		Score:      v.Score,
		Reason:     reason,
		ReviewedBy: p.UserID,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Camp is not pending approval")
	}
	s.logger.Info("camp reviewed",
		zap.String("camp_id", id.Hex()),
		zap.String("action", string(action)),
		zap.Int("score", v.Score),
	)
	return &ApprovalResult{Camp: updated, Verification: v}, nil
}

// AddReview records a rating from a user who attended or confirmed a seat at the camp.
func (s *Service) AddReview(ctx context.Context, p authz.Principal, id primitive.ObjectID, in ReviewInput) (*models.Camp, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	camp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	reg, err := s.regs.FindByUserAndCamp(ctx, p.UserID, id)
	if err != nil {
		return nil, err
	}
	if reg == nil || (reg.Status != models.RegistrationAttended && reg.Status != models.RegistrationConfirmed) {
		return nil, apperrors.ErrReviewNotAllowed
	}
	for _, r := range camp.Reviews {
		if r.UserID == p.UserID {
			return nil, apperrors.ErrAlreadyReviewed
		}
	}
	updated, err := s.store.AddReview(ctx, id, models.Review{
		ID:        primitive.NewObjectID(),
		UserID:    p.UserID,
		UserName:  reg.UserName,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.ErrAlreadyReviewed
	}
	return updated, nil
}

func (s *Service) lookup(ctx context.Context, idOrSlug string) (*models.Camp, error) {
	var (
		camp *models.Camp
		err  error
	)
	if oid, perr := primitive.ObjectIDFromHex(idOrSlug); perr == nil {
		camp, err = s.store.GetByID(ctx, oid)
	} else {
		camp, err = s.store.GetBySlug(ctx, strings.ToLower(idOrSlug))
	}
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	return camp, nil
}

func (s *Service) editable(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Camp, error) {
	camp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	if !authz.CanEditCamp(p, camp) {
		return nil, apperrors.ErrForbidden
	}
	return camp, nil
}

// nextStatus validates a status change requested through Update. Approval goes through Approve;
// only a camp an admin approved before may be reopened.
func nextStatus(p authz.Principal, camp *models.Camp, to models.CampStatus) (models.CampStatus, error) {
	from := camp.Status
	if from == to {
		return to, nil
	}
	switch to {
	case models.CampStatusClosed, models.CampStatusCancelled:
		if from == models.CampStatusActive || from == models.CampStatusFull || from == models.CampStatusPending || p.IsAdmin() {
			return to, nil
		}
	case models.CampStatusActive:
		// reopening a closed camp; fixed up to full below when no seats remain
		if from == models.CampStatusClosed && (camp.ApprovedAt != nil || p.IsAdmin()) {
			return to, nil
		}
	case models.CampStatusDraft:
		if from == models.CampStatusPending {
			return to, nil
		}
	case models.CampStatusPending:
		if from == models.CampStatusDraft || from == models.CampStatusRejected {
			return to, nil
		}
	}
	return "", apperrors.Clone(apperrors.ErrInvalidTransition, fmt.Sprintf("cannot change camp status from %s to %s", from, to))
}

func isPublic(s models.CampStatus) bool {
	switch s {
	case models.CampStatusActive, models.CampStatusFull, models.CampStatusClosed:
		return true
	}
	return false
}

func putString(set bson.M, key string, v *string) {
	if v != nil {
		set[key] = strings.TrimSpace(*v)
	}
}

var errStorageDisabled = apperrors.Clone(apperrors.ErrUnavailable, "image storage is not configured")
