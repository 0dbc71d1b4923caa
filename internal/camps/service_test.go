package camps

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

type memStore struct {
	camps map[primitive.ObjectID]*models.Camp
}

func newMemStore() *memStore {
	return &memStore{camps: map[primitive.ObjectID]*models.Camp{}}
}

func (m *memStore) Create(_ context.Context, camp *models.Camp) error {
	for _, c := range m.camps {
		if c.Slug == camp.Slug {
			return ErrSlugTaken
		}
	}
	camp.ID = primitive.NewObjectID()
	cp := *camp
	m.camps[camp.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Camp, error) {
	c, ok := m.camps[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetBySlug(_ context.Context, slug string) (*models.Camp, error) {
	for _, c := range m.camps {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]models.Camp, int64, error) {
	out := []models.Camp{}
	for _, c := range m.camps {
		if f.OrganizerID != nil && c.OrganizerID != *f.OrganizerID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
			continue
		}
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func containsStatus(list []models.CampStatus, s models.CampStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memStore) Update(_ context.Context, id primitive.ObjectID, set bson.M) (*models.Camp, error) {
	c, ok := m.camps[id]
	if !ok {
		return nil, nil
	}
	if slug, ok := set["slug"].(string); ok {
		for otherID, other := range m.camps {
			if otherID != id && other.Slug == slug {
				return nil, ErrSlugTaken
			}
		}
	}
	for k, v := range set {
		switch k {
		case "slug":
			c.Slug = v.(string)
		case "name":
			c.Name = v.(string)
		case "capacity":
			c.Capacity = v.(int)
		case "status":
			c.Status = v.(models.CampStatus)
		case "imageUrl":
			c.ImageURL = v.(string)
		}
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	_, ok := m.camps[id]
	delete(m.camps, id)
	return ok, nil
}

func (m *memStore) SetReviewOutcome(_ context.Context, id primitive.ObjectID, o ReviewOutcome) (*models.Camp, error) {
	c, ok := m.camps[id]
	if !ok || c.Status != models.CampStatusPending {
		return nil, nil
	}
	c.Status = o.Status
	c.RejectionReason = o.Reason
	score := o.Score
	c.VerificationScore = &score
	c.ReviewedBy = &o.ReviewedBy
	if o.Status == models.CampStatusActive || o.Status == models.CampStatusFull {
		now := time.Now().UTC()
		c.ApprovedAt = &now
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) AddReview(_ context.Context, id primitive.ObjectID, review models.Review) (*models.Camp, error) {
	c, ok := m.camps[id]
	if !ok {
		return nil, nil
	}
	for _, r := range c.Reviews {
		if r.UserID == review.UserID {
			return nil, nil
		}
	}
	c.Reviews = append(c.Reviews, review)
	sum := 0
	for _, r := range c.Reviews {
		sum += r.Rating
	}
	c.AvgRating = float64(sum) / float64(len(c.Reviews))
	cp := *c
	return &cp, nil
}

type memRegs map[[2]primitive.ObjectID]*models.Registration

func (m memRegs) FindByUserAndCamp(_ context.Context, userID, campID primitive.ObjectID) (*models.Registration, error) {
	return m[[2]primitive.ObjectID{userID, campID}], nil
}

var (
	organizer = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleOrganizer}
	stranger  = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleOrganizer}
	admin     = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}
	camper    = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleUser}
)

func validInput() CampInput {
	return CampInput{
		Name:             "Young Coders Camp",
		Description:      strings.Repeat("x", 60),
		Location:         "Bangkok",
		Capacity:         2,
		Price:            3000,
		OrganizerContact: "org@example.com",
	}
}

func TestCreateStartsPendingAndSuffixesSlug(t *testing.T) {
	svc := NewService(newMemStore(), memRegs{}, nil, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusPending, first.Status)
	assert.Equal(t, "young-coders-camp", first.Slug)
	assert.Equal(t, organizer.UserID, first.OrganizerID)

	second, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	assert.Equal(t, "young-coders-camp-2", second.Slug)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemStore(), memRegs{}, nil, nil)

	in := validInput()
	in.Name = "???"
	_, err := svc.Create(context.Background(), organizer, in)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSlug)

	in = validInput()
	in.Capacity = -1
	_, err = svc.Create(context.Background(), organizer, in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApprove(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, memRegs{}, nil, nil)
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)

	_, err = svc.Approve(ctx, organizer, camp.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = svc.Approve(ctx, admin, camp.ID, ApprovalAction("maybe"), "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	res, err := svc.Approve(ctx, admin, camp.ID, ActionReject, "  Missing schedule ")
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusRejected, res.Camp.Status)
	assert.Equal(t, "Missing schedule", res.Camp.RejectionReason)
	// image missing: -10
	assert.Equal(t, 90, res.Verification.Score)

	_, err = svc.Approve(ctx, admin, camp.ID, ActionApprove, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestApproveIgnoresLowScore(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, memRegs{}, nil, nil)
	in := validInput()
	in.Description = "free money"
	camp, err := svc.Create(context.Background(), organizer, in)
	require.NoError(t, err)

	res, err := svc.Approve(context.Background(), admin, camp.ID, ActionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusActive, res.Camp.Status)
	assert.Less(t, res.Verification.Score, 100)
}

func TestGetHidesUnapprovedCamps(t *testing.T) {
	svc := NewService(newMemStore(), memRegs{}, nil, nil)
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, nil, camp.Slug)
	assert.ErrorIs(t, err, apperrors.ErrCampNotFound)
	_, err = svc.Get(ctx, &stranger, camp.ID.Hex())
	assert.ErrorIs(t, err, apperrors.ErrCampNotFound)

	got, err := svc.Get(ctx, &organizer, camp.Slug)
	require.NoError(t, err)
	assert.Equal(t, camp.ID, got.ID)

	_, err = svc.Approve(ctx, admin, camp.ID, ActionApprove, "")
	require.NoError(t, err)
	_, err = svc.Get(ctx, nil, camp.ID.Hex())
	assert.NoError(t, err)
}

func TestListScopes(t *testing.T) {
	svc := NewService(newMemStore(), memRegs{}, nil, nil)
	ctx := context.Background()
	pending, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	active, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, active.ID, ActionApprove, "")
	require.NoError(t, err)

	public, total, err := svc.List(ctx, nil, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, active.ID, public[0].ID)

	_, total, err = svc.List(ctx, &admin, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	mine, _, err := svc.List(ctx, &organizer, ListQuery{Mine: true, Status: models.CampStatusPending})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, pending.ID, mine[0].ID)

	_, _, err = svc.List(ctx, nil, ListQuery{Mine: true})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestUpdate(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, memRegs{}, nil, nil)
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, camp.ID, ActionApprove, "")
	require.NoError(t, err)
	store.camps[camp.ID].Enrolled = 2
	store.camps[camp.ID].Status = models.CampStatusFull

	name := "Renamed Camp"
	_, err = svc.Update(ctx, stranger, camp.ID, CampUpdate{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	one := 1
	_, err = svc.Update(ctx, organizer, camp.ID, CampUpdate{Capacity: &one})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	ten := 10
	updated, err := svc.Update(ctx, organizer, camp.ID, CampUpdate{Capacity: &ten})
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusActive, updated.Status)

	closed := models.CampStatusClosed
	updated, err = svc.Update(ctx, organizer, camp.ID, CampUpdate{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusClosed, updated.Status)

	full := models.CampStatusFull
	_, err = svc.Update(ctx, organizer, camp.ID, CampUpdate{Status: &full})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	active := models.CampStatusActive
	updated, err = svc.Update(ctx, organizer, camp.ID, CampUpdate{Status: &active})
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusActive, updated.Status)
}

func TestUpdateCannotActivateUnapprovedCamp(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, memRegs{}, nil, nil)
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)

	closed := models.CampStatusClosed
	updated, err := svc.Update(ctx, organizer, camp.ID, CampUpdate{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusClosed, updated.Status)

	active := models.CampStatusActive
	_, err = svc.Update(ctx, organizer, camp.ID, CampUpdate{Status: &active})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, models.CampStatusClosed, store.camps[camp.ID].Status)

	// a rejected camp sent back to review still has no approval
	rejected, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, rejected.ID, ActionReject, "thin description")
	require.NoError(t, err)
	img := "https://cdn.example.com/new.png"
	updated, err = svc.Update(ctx, organizer, rejected.ID, CampUpdate{ImageURL: &img})
	require.NoError(t, err)
	require.Equal(t, models.CampStatusPending, updated.Status)
	_, err = svc.Update(ctx, organizer, rejected.ID, CampUpdate{Status: &closed})
	require.NoError(t, err)
	_, err = svc.Update(ctx, organizer, rejected.ID, CampUpdate{Status: &active})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestUpdateRenameRederivesSlug(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, memRegs{}, nil, nil)
	ctx := context.Background()
	first, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	other := validInput()
	other.Name = "Art Camp"
	second, err := svc.Create(ctx, organizer, other)
	require.NoError(t, err)
	require.Equal(t, "art-camp", second.Slug)

	name := "Science Camp"
	updated, err := svc.Update(ctx, organizer, first.ID, CampUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Science Camp", updated.Name)
	assert.Equal(t, "science-camp", updated.Slug)

	name = "Art Camp!"
	updated, err = svc.Update(ctx, organizer, first.ID, CampUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "art-camp-2", updated.Slug)

	// same slug family keeps the slug
	name = "art camp"
	updated, err = svc.Update(ctx, organizer, first.ID, CampUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "art-camp-2", updated.Slug)

	bad := "!!!"
	_, err = svc.Update(ctx, organizer, first.ID, CampUpdate{Name: &bad})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSlug)
}

func TestSlugDerivesFrom(t *testing.T) {
	assert.True(t, slugDerivesFrom("art-camp", "art-camp"))
	assert.True(t, slugDerivesFrom("art-camp-3", "art-camp"))
	assert.False(t, slugDerivesFrom("art-camp-x", "art-camp"))
	assert.False(t, slugDerivesFrom("art-camp-", "art-camp"))
	assert.False(t, slugDerivesFrom("science-camp", "art-camp"))
}

func TestRejectedCampReturnsToPendingOnEdit(t *testing.T) {
	svc := NewService(newMemStore(), memRegs{}, nil, nil)
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, camp.ID, ActionReject, "no image")
	require.NoError(t, err)

	img := "https://cdn.example.com/new.png"
	updated, err := svc.Update(ctx, organizer, camp.ID, CampUpdate{ImageURL: &img})
	require.NoError(t, err)
	assert.Equal(t, models.CampStatusPending, updated.Status)
}

func TestDeleteWithRegistrations(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, memRegs{}, nil, nil)
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)
	store.camps[camp.ID].Enrolled = 1

	assert.ErrorIs(t, svc.Delete(ctx, organizer, camp.ID), apperrors.ErrValidation)
	require.NoError(t, svc.Delete(ctx, admin, camp.ID))
	assert.Empty(t, store.camps)
}

func TestAddReview(t *testing.T) {
	store := newMemStore()
	regs := memRegs{}
	svc := NewService(store, regs, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	camp, err := svc.Create(ctx, organizer, validInput())
	require.NoError(t, err)

	_, err = svc.AddReview(ctx, camper, camp.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, apperrors.ErrReviewNotAllowed)

	key := [2]primitive.ObjectID{camper.UserID, camp.ID}
	regs[key] = &models.Registration{UserID: camper.UserID, CampID: camp.ID, UserName: "Nok", Status: models.RegistrationApproved}
	_, err = svc.AddReview(ctx, camper, camp.ID, ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, apperrors.ErrReviewNotAllowed)

	regs[key].Status = models.RegistrationAttended
	_, err = svc.AddReview(ctx, camper, camp.ID, ReviewInput{Rating: 6})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	updated, err := svc.AddReview(ctx, camper, camp.ID, ReviewInput{Rating: 4, Comment: "Great"})
	require.NoError(t, err)
	require.Len(t, updated.Reviews, 1)
	assert.Equal(t, "Nok", updated.Reviews[0].UserName)
	assert.Equal(t, 4.0, updated.AvgRating)

	_, err = svc.AddReview(ctx, camper, camp.ID, ReviewInput{Rating: 3})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyReviewed)
}
