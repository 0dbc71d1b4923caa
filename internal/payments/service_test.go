package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/internal/promocodes"
	"github.com/campverse/backend/internal/slipverify"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/queue"
)

type memStore struct {
	mu   sync.Mutex
	pays map[primitive.ObjectID]*models.Payment
}

func newMemStore() *memStore {
	return &memStore{pays: map[primitive.ObjectID]*models.Payment{}}
}

func (m *memStore) Create(_ context.Context, pay *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pays {
		if p.RegistrationID == pay.RegistrationID {
			return apperrors.ErrPaymentExists
		}
	}
	pay.ID = primitive.NewObjectID()
	cp := *pay
	m.pays[pay.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pays[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetByRegistration(_ context.Context, regID primitive.ObjectID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pays {
		if p.RegistrationID == regID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) TransRefUsed(_ context.Context, ref string, except primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.pays {
		if id != except && p.SlipData != nil && p.SlipData.TransRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) List(_ context.Context, f Filter) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.pays {
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		if f.OrganizerID != nil && p.OrganizerID != *f.OrganizerID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) Transition(_ context.Context, id primitive.ObjectID, from []models.PaymentStatus, extra bson.M, set bson.M) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pays[id]
	if !ok || !hasStatus(from, p.Status) {
		return nil, nil
	}
	if v, ok := extra["slipVerified"]; ok && p.SlipVerified != v.(bool) {
		return nil, nil
	}
	for k, v := range set {
		switch k {
		case "status":
			p.Status = v.(models.PaymentStatus)
		case "slipUrl":
			p.SlipURL = v.(string)
		case "paidAt":
			t := v.(time.Time)
			p.PaidAt = &t
		case "autoReleaseDate":
			t := v.(time.Time)
			p.AutoReleaseDate = &t
		case "slipVerified":
			p.SlipVerified = v.(bool)
		case "requiresManualReview":
			p.RequiresManualReview = v.(bool)
		case "verificationIssues":
			p.VerificationIssues = v.([]string)
		case "slipData":
			p.SlipData = v.(*models.SlipData)
		case "verifiedBy":
			u := v.(primitive.ObjectID)
			p.VerifiedBy = &u
		case "verifiedAt":
			t := v.(time.Time)
			p.VerifiedAt = &t
		case "rejectedBy":
			u := v.(primitive.ObjectID)
			p.RejectedBy = &u
		case "rejectedAt":
			t := v.(time.Time)
			p.RejectedAt = &t
		case "rejectionReason":
			p.RejectionReason = v.(string)
		case "confirmedAt":
			t := v.(time.Time)
			p.ConfirmedAt = &t
		}
	}
	cp := *p
	return &cp, nil
}

func due(p *models.Payment, now time.Time) bool {
	if p.AutoReleaseDate == nil || p.AutoReleaseDate.After(now) {
		return false
	}
	return (p.Status == models.PaymentCompleted && p.SlipVerified) || p.Status == models.PaymentConfirmed
}

func (m *memStore) DueForRelease(_ context.Context, now time.Time, _ int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.pays {
		if due(p, now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) MarkReleased(_ context.Context, id primitive.ObjectID, now time.Time) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pays[id]
	if !ok || !due(p, now) {
		return nil, nil
	}
	p.Status = models.PaymentReleased
	p.ReleasedAt = &now
	cp := *p
	return &cp, nil
}

func hasStatus(list []models.PaymentStatus, s models.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memRegs struct {
	regs map[primitive.ObjectID]*models.Registration
}

func (m *memRegs) GetByID(_ context.Context, id primitive.ObjectID) (*models.Registration, error) {
	r, ok := m.regs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRegs) Transition(_ context.Context, id primitive.ObjectID, from []models.RegistrationStatus, set bson.M) (*models.Registration, error) {
	r, ok := m.regs[id]
	if !ok {
		return nil, nil
	}
	matched := false
	for _, s := range from {
		if r.Status == s {
			matched = true
		}
	}
	if !matched {
		return nil, nil
	}
	if v, ok := set["status"]; ok {
		r.Status = v.(models.RegistrationStatus)
	}
	if v, ok := set["note"]; ok {
		r.Note = v.(string)
	}
	cp := *r
	return &cp, nil
}

type memCamps struct {
	camps    map[primitive.ObjectID]*models.Camp
	released int
}

func (m *memCamps) GetByID(_ context.Context, id primitive.ObjectID) (*models.Camp, error) {
	c, ok := m.camps[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCamps) ReleaseSeat(_ context.Context, id primitive.ObjectID) (*models.Camp, error) {
	m.released++
	c := m.camps[id]
	c.Enrolled--
	cp := *c
	return &cp, nil
}

type fakePromos struct {
	redeemed []string
	released []string
	err      error
}

func (f *fakePromos) Redeem(_ context.Context, code string, amount float64, _ primitive.ObjectID) (*promocodes.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.redeemed = append(f.redeemed, code)
	return &promocodes.Quote{Code: code, Amount: amount, Discount: 200, FinalAmount: amount - 200}, nil
}

func (f *fakePromos) Release(_ context.Context, code string) {
	f.released = append(f.released, code)
}

type fakeSlips struct {
	result *slipverify.Result
	err    error
}

func (f *fakeSlips) Verify(_ context.Context, _ string) (*slipverify.Result, error) {
	return f.result, f.err
}

type fakeJobs struct{ ids []string }

func (f *fakeJobs) EnqueueSlipVerify(_ context.Context, p queue.SlipVerifyPayload) error {
	f.ids = append(f.ids, p.PaymentID)
	return nil
}

type fakeNotifier struct{ verified, rejected []string }

func (f *fakeNotifier) PaymentVerified(_ context.Context, email string, _ *models.Payment) {
	f.verified = append(f.verified, email)
}

func (f *fakeNotifier) PaymentRejected(_ context.Context, email string, _ *models.Payment) {
	f.rejected = append(f.rejected, email)
}

type fakeLedger struct{ recorded []primitive.ObjectID }

func (f *fakeLedger) RecordRelease(_ context.Context, pay *models.Payment) error {
	f.recorded = append(f.recorded, pay.ID)
	return nil
}

type countMetrics struct {
	transitions map[string]int
	released    int
}

func (c *countMetrics) PaymentTransition(to string) { c.transitions[to]++ }
func (c *countMetrics) EscrowReleased(n int)        { c.released += n }

var (
	organizer = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleOrganizer}
	stranger  = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleOrganizer}
	admin     = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}
	camper    = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleUser}
	other     = authz.Principal{UserID: primitive.NewObjectID(), Role: models.RoleUser}
)

type fixture struct {
	svc      *Service
	store    *memStore
	regs     *memRegs
	camps    *memCamps
	promos   *fakePromos
	slips    *fakeSlips
	jobs     *fakeJobs
	notifier *fakeNotifier
	ledger   *fakeLedger
	metrics  *countMetrics
	camp     *models.Camp
	reg      *models.Registration
	now      time.Time
}

func newFixture() *fixture {
	camp := &models.Camp{ID: primitive.NewObjectID(), Name: "Art Camp", Price: 3000, Capacity: 10, Enrolled: 1, Status: models.CampStatusActive, OrganizerID: organizer.UserID}
	reg := &models.Registration{ID: primitive.NewObjectID(), CampID: camp.ID, UserID: camper.UserID, UserEmail: "camper@example.com", Status: models.RegistrationPending}
	f := &fixture{
		store:    newMemStore(),
		regs:     &memRegs{regs: map[primitive.ObjectID]*models.Registration{reg.ID: reg}},
		camps:    &memCamps{camps: map[primitive.ObjectID]*models.Camp{camp.ID: camp}},
		promos:   &fakePromos{},
		slips:    &fakeSlips{},
		jobs:     &fakeJobs{},
		notifier: &fakeNotifier{},
		ledger:   &fakeLedger{},
		metrics:  &countMetrics{transitions: map[string]int{}},
		camp:     camp,
		reg:      reg,
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(Deps{
		Store:         f.store,
		Registrations: f.regs,
		Camps:         f.camps,
		Promos:        f.promos,
		Slips:         f.slips,
		Jobs:          f.jobs,
		Notifier:      f.notifier,
		Ledger:        f.ledger,
		Metrics:       f.metrics,
	}, Config{HoldDays: 15, ReceiverAccount: "123-4-56789-0", PromptPayID: "0812345678"}, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) create(t *testing.T, promo string) *models.Payment {
	t.Helper()
	pay, err := f.svc.Create(context.Background(), camper, CreateInput{
		RegistrationID: f.reg.ID.Hex(),
		CampID:         f.camp.ID.Hex(),
		UserID:         camper.UserID.Hex(),
		Amount:         3000,
		FinalAmount:    3000,
		PromoCode:      promo,
	})
	require.NoError(t, err)
	return pay
}

func (f *fixture) attach(t *testing.T, pay *models.Payment) *models.Payment {
	t.Helper()
	got, err := f.svc.AttachSlip(context.Background(), camper, pay.ID, "https://img.example.com/slip.jpg")
	require.NoError(t, err)
	return got
}

func TestCreate(t *testing.T) {
	f := newFixture()
	pay := f.create(t, "")
	assert.Equal(t, models.PaymentPending, pay.Status)
	assert.Equal(t, 3000.0, pay.FinalAmount)
	assert.Equal(t, organizer.UserID, pay.OrganizerID)
	assert.Equal(t, 1, f.metrics.transitions["pending"])

	_, err := f.svc.Create(context.Background(), camper, CreateInput{RegistrationID: f.reg.ID.Hex(), CampID: f.camp.ID.Hex(), Amount: 3000})
	assert.ErrorIs(t, err, apperrors.ErrPaymentExists)
}

func TestCreate_WithPromo(t *testing.T) {
	f := newFixture()
	pay := f.create(t, " save10 ")
	assert.Equal(t, "SAVE10", pay.PromoCode)
	assert.Equal(t, 200.0, pay.Discount)
	assert.Equal(t, 2800.0, pay.FinalAmount)
	assert.Equal(t, []string{"SAVE10"}, f.promos.redeemed)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture()
	base := CreateInput{RegistrationID: f.reg.ID.Hex(), CampID: f.camp.ID.Hex(), Amount: 3000}

	_, err := f.svc.Create(context.Background(), other, base)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	wrongCamp := base
	wrongCamp.CampID = primitive.NewObjectID().Hex()
	_, err = f.svc.Create(context.Background(), camper, wrongCamp)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	cheap := base
	cheap.Amount = 1
	_, err = f.svc.Create(context.Background(), camper, cheap)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	f.promos.err = apperrors.Clone(apperrors.ErrInvalidPromo, "Promo code usage limit reached")
	withPromo := base
	withPromo.PromoCode = "SAVE10"
	_, err = f.svc.Create(context.Background(), camper, withPromo)
	assert.ErrorIs(t, err, apperrors.ErrInvalidPromo)
	assert.Empty(t, f.store.pays)

	f.regs.regs[f.reg.ID].Status = models.RegistrationCancelled
	_, err = f.svc.Create(context.Background(), camper, base)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestAttachSlip_StartsHold(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))

	assert.Equal(t, models.PaymentCompleted, pay.Status)
	require.NotNil(t, pay.PaidAt)
	require.NotNil(t, pay.AutoReleaseDate)
	assert.Equal(t, f.now, *pay.PaidAt)
	assert.Equal(t, f.now.Add(15*24*time.Hour), *pay.AutoReleaseDate)
	assert.Equal(t, []string{pay.ID.Hex()}, f.jobs.ids)

	_, err := f.svc.AttachSlip(context.Background(), camper, pay.ID, "https://img.example.com/again.jpg")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = f.svc.AttachSlip(context.Background(), camper, pay.ID, " ")
	assert.ErrorIs(t, err, apperrors.ErrSlipRequired)
}

func goodSlip(f *fixture) *slipverify.Result {
	return &slipverify.Result{
		TransRef:        "T1",
		Amount:          3000,
		Date:            f.now.Add(-time.Hour),
		ReceiverAccount: "xxx-x-x6789-x",
	}
}

func TestVerifySlip_Match(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))
	f.slips.result = goodSlip(f)

	got, err := f.svc.VerifySlip(context.Background(), pay.ID)
	require.NoError(t, err)
	assert.True(t, got.SlipVerified)
	assert.False(t, got.RequiresManualReview)
	assert.Equal(t, models.PaymentCompleted, got.Status)
	require.NotNil(t, got.SlipData)
	assert.Equal(t, "T1", got.SlipData.TransRef)
	assert.Equal(t, models.RegistrationApproved, f.regs.regs[f.reg.ID].Status)
	assert.Equal(t, []string{"camper@example.com"}, f.notifier.verified)
}

func TestVerifySlip_Mismatch(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))
	slip := goodSlip(f)
	slip.Amount = 2500
	f.slips.result = slip

	got, err := f.svc.VerifySlip(context.Background(), pay.ID)
	require.NoError(t, err)
	assert.False(t, got.SlipVerified)
	assert.True(t, got.RequiresManualReview)
	assert.Len(t, got.VerificationIssues, 1)
	assert.Equal(t, models.PaymentCompleted, got.Status)
	assert.Equal(t, models.RegistrationPending, f.regs.regs[f.reg.ID].Status)
}

func TestVerifySlip_DuplicateTransRef(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))
	f.store.pays[primitive.NewObjectID()] = &models.Payment{SlipData: &models.SlipData{TransRef: "T1"}}
	f.slips.result = goodSlip(f)

	got, err := f.svc.VerifySlip(context.Background(), pay.ID)
	require.NoError(t, err)
	assert.True(t, got.RequiresManualReview)
	assert.Contains(t, got.VerificationIssues, "slip already used for another payment")
}

func TestVerifySlip_UnreadableAndErrors(t *testing.T) {
	f := newFixture()
	pay := f.create(t, "")

	_, err := f.svc.VerifySlip(context.Background(), pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	f.attach(t, pay)
	f.slips.err = errors.New("timeout")
	_, err = f.svc.VerifySlip(context.Background(), pay.ID)
	require.Error(t, err)

	f.slips.err = slipverify.ErrUnreadable
	got, err := f.svc.VerifySlip(context.Background(), pay.ID)
	require.NoError(t, err)
	assert.True(t, got.RequiresManualReview)
	assert.Equal(t, []string{"slip could not be read"}, got.VerificationIssues)

	_, err = f.svc.RequestVerification(context.Background(), other, pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestApprove(t *testing.T) {
	f := newFixture()
	pay := f.create(t, "")

	_, err := f.svc.Approve(context.Background(), organizer, pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrSlipRequired)

	f.attach(t, pay)
	_, err = f.svc.Approve(context.Background(), stranger, pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.svc.Approve(context.Background(), camper, pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err := f.svc.Approve(context.Background(), organizer, pay.ID)
	require.NoError(t, err)
	assert.True(t, got.SlipVerified)
	require.NotNil(t, got.VerifiedBy)
	assert.Equal(t, organizer.UserID, *got.VerifiedBy)
	assert.Equal(t, models.RegistrationApproved, f.regs.regs[f.reg.ID].Status)
}

func TestReject(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))

	_, err := f.svc.Reject(context.Background(), admin, pay.ID, "  ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := f.svc.Reject(context.Background(), admin, pay.ID, "blurry slip")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, got.Status)
	assert.Equal(t, "blurry slip", got.RejectionReason)
	reg := f.regs.regs[f.reg.ID]
	assert.Equal(t, models.RegistrationRejected, reg.Status)
	assert.Equal(t, "Payment rejected: blurry slip", reg.Note)
	assert.Equal(t, 1, f.camps.released)
	assert.Equal(t, []string{"camper@example.com"}, f.notifier.rejected)

	_, err = f.svc.Reject(context.Background(), admin, pay.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, f.promos.released)
}

func TestReject_ReturnsPromoUse(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, "SAVE10"))
	require.Equal(t, []string{"SAVE10"}, f.promos.redeemed)

	_, err := f.svc.Reject(context.Background(), organizer, pay.ID, "wrong amount")
	require.NoError(t, err)
	assert.Equal(t, []string{"SAVE10"}, f.promos.released)

	_, err = f.svc.Reject(context.Background(), organizer, pay.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Len(t, f.promos.released, 1)
}

func TestConfirm(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))

	_, err := f.svc.Confirm(context.Background(), organizer, pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = f.svc.Confirm(context.Background(), admin, pay.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = f.svc.Approve(context.Background(), admin, pay.ID)
	require.NoError(t, err)
	got, err := f.svc.Confirm(context.Background(), admin, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.Status)
}

func TestReleaseDue(t *testing.T) {
	f := newFixture()
	pay := f.attach(t, f.create(t, ""))

	n, err := f.svc.ReleaseDue(context.Background(), f.now.Add(30*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unverified slips stay in escrow")

	_, err = f.svc.Approve(context.Background(), admin, pay.ID)
	require.NoError(t, err)

	n, err = f.svc.ReleaseDue(context.Background(), f.now.Add(14*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.ReleaseDue(context.Background(), f.now.Add(15*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.PaymentReleased, f.store.pays[pay.ID].Status)
	assert.Equal(t, []primitive.ObjectID{pay.ID}, f.ledger.recorded)
	assert.Equal(t, 1, f.metrics.released)

	n, err = f.svc.ReleaseDue(context.Background(), f.now.Add(16*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.ledger.recorded, 1)
}

func TestListScopes(t *testing.T) {
	f := newFixture()
	f.create(t, "")
	f.store.pays[primitive.NewObjectID()] = &models.Payment{UserID: other.UserID, OrganizerID: stranger.UserID, Status: models.PaymentPending}

	mine, err := f.svc.List(context.Background(), camper, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	received, err := f.svc.List(context.Background(), organizer, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, received, 1)

	all, err := f.svc.List(context.Background(), admin, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQRCode(t *testing.T) {
	f := newFixture()
	pay := f.create(t, "")

	png, err := f.svc.QRCode(context.Background(), camper, pay.ID, 256)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	_, err = f.svc.QRCode(context.Background(), other, pay.ID, 256)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	f.svc.cfg.PromptPayID = ""
	_, err = f.svc.QRCode(context.Background(), camper, pay.ID, 256)
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}
