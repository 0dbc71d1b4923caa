package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/authz"
	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/internal/promocodes"
	"github.com/campverse/backend/internal/slipverify"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/promptpay"
	"github.com/campverse/backend/pkg/queue"
)

// Store is the payment persistence the service needs.
type Store interface {
	Create(ctx context.Context, pay *models.Payment) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	GetByRegistration(ctx context.Context, registrationID primitive.ObjectID) (*models.Payment, error)
	TransRefUsed(ctx context.Context, transRef string, except primitive.ObjectID) (bool, error)
	List(ctx context.Context, f Filter) ([]models.Payment, error)
	Transition(ctx context.Context, id primitive.ObjectID, from []models.PaymentStatus, extra bson.M, set bson.M) (*models.Payment, error)
	DueForRelease(ctx context.Context, now time.Time, limit int64) ([]models.Payment, error)
	MarkReleased(ctx context.Context, id primitive.ObjectID, now time.Time) (*models.Payment, error)
}

// RegistrationStore reads registrations and moves them when a payment is decided.
type RegistrationStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Registration, error)
	Transition(ctx context.Context, id primitive.ObjectID, from []models.RegistrationStatus, set bson.M) (*models.Registration, error)
}

// CampStore reads camps and hands back seats of rejected registrations.
type CampStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Camp, error)
	ReleaseSeat(ctx context.Context, id primitive.ObjectID) (*models.Camp, error)
}

// PromoRedeemer consumes promo code uses.
type PromoRedeemer interface {
	Redeem(ctx context.Context, code string, amount float64, campID primitive.ObjectID) (*promocodes.Quote, error)
	Release(ctx context.Context, code string)
}

// SlipReader extracts the transfer from a slip image.
type SlipReader interface {
	Verify(ctx context.Context, slipURL string) (*slipverify.Result, error)
}

// JobEnqueuer schedules background slip verification.
type JobEnqueuer interface {
	EnqueueSlipVerify(ctx context.Context, payload queue.SlipVerifyPayload) error
}

// Notifier emails the payer.
type Notifier interface {
	PaymentVerified(ctx context.Context, email string, pay *models.Payment)
	PaymentRejected(ctx context.Context, email string, pay *models.Payment)
}

// Ledger records organizer payouts.
type Ledger interface {
	RecordRelease(ctx context.Context, pay *models.Payment) error
}

// Recorder counts payment transitions.
type Recorder interface {
	PaymentTransition(to string)
	EscrowReleased(n int)
}

// Config holds payment settings.
type Config struct {
	HoldDays        int
	ReceiverAccount string
	ReceiverName    string
	PromptPayID     string
}

// Deps are the collaborators of Service. Only Store, Registrations and Camps are required.
type Deps struct {
	Store         Store
	Registrations RegistrationStore
	Camps         CampStore
	Promos        PromoRedeemer
	Slips         SlipReader
	Jobs          JobEnqueuer
	Notifier      Notifier
	Ledger        Ledger
	Metrics       Recorder
}

// CreateInput is the body for POST /payment.
type CreateInput struct {
	RegistrationID string  `json:"registrationId" binding:"required"`
	CampID         string  `json:"campId" binding:"required"`
	UserID         string  `json:"userId"`
	Amount         float64 `json:"amount" binding:"gte=0"`
	FinalAmount    float64 `json:"finalAmount" binding:"gte=0"`
	Discount       float64 `json:"discount" binding:"gte=0"`
	PromoCode      string  `json:"promoCode"`
}

// ListQuery filters GET /payments.
type ListQuery struct {
	Status models.PaymentStatus
	CampID *primitive.ObjectID
	Limit  int64
	Skip   int64
}

// Service drives the payment state machine.
type Service struct {
	store    Store
	regs     RegistrationStore
	camps    CampStore
	promos   PromoRedeemer
	slips    SlipReader
	jobs     JobEnqueuer
	notifier Notifier
	ledger   Ledger
	metrics  Recorder
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a payment service.
func NewService(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HoldDays <= 0 {
		cfg.HoldDays = 15
	}
	return &Service{
		store:    deps.Store,
		regs:     deps.Registrations,
		camps:    deps.Camps,
		promos:   deps.Promos,
		slips:    deps.Slips,
		jobs:     deps.Jobs,
		notifier: deps.Notifier,
		ledger:   deps.Ledger,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Hold is the escrow period between paying and release.
func (s *Service) Hold() time.Duration {
	return time.Duration(s.cfg.HoldDays) * 24 * time.Hour
}

// Create opens a pending payment for the caller's registration. With a promo code the
// discount is recomputed server side and one use is consumed.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*models.Payment, error) {
	regID, err := primitive.ObjectIDFromHex(in.RegistrationID)
	if err != nil {
		return nil, apperrors.Validation("invalid registrationId")
	}
	campID, err := primitive.ObjectIDFromHex(in.CampID)
	if err != nil {
		return nil, apperrors.Validation("invalid campId")
	}
	reg, err := s.regs.GetByID(ctx, regID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, apperrors.ErrRegistrationNotFound
	}
	if reg.UserID != p.UserID && !p.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	if reg.CampID != campID {
		return nil, apperrors.Validation("campId does not match the registration")
	}
	if in.UserID != "" && in.UserID != reg.UserID.Hex() {
		return nil, apperrors.Validation("userId does not match the registration")
	}
	if !reg.HoldsSeat() {
		return nil, apperrors.Validation("Registration is " + string(reg.Status))
	}
	existing, err := s.store.GetByRegistration(ctx, regID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrPaymentExists
	}
	camp, err := s.camps.GetByID(ctx, campID)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, apperrors.ErrCampNotFound
	}
	if camp.Price > 0 && !decimal.NewFromFloat(in.Amount).Equal(decimal.NewFromFloat(camp.Price)) {
		return nil, apperrors.Validation("amount does not match the camp price")
	}

	now := s.now().UTC()
	pay := &models.Payment{
		RegistrationID: regID,
		CampID:         campID,
		UserID:         reg.UserID,
		OrganizerID:    camp.OrganizerID,
		Amount:         in.Amount,
		FinalAmount:    in.Amount,
		Status:         models.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	code := promocodes.Normalize(in.PromoCode)
	if code != "" {
		if s.promos == nil {
			return nil, apperrors.Clone(apperrors.ErrInvalidPromo, "Promo codes are not available")
		}
		quote, err := s.promos.Redeem(ctx, code, in.Amount, campID)
		if err != nil {
			return nil, err
		}
		pay.PromoCode = code
		pay.Discount = quote.Discount
		pay.FinalAmount = quote.FinalAmount
	}

	if err := s.store.Create(ctx, pay); err != nil {
		if code != "" {
			s.promos.Release(ctx, code)
		}
		return nil, err
	}
	s.transitioned(models.PaymentPending)
	s.logger.Info("payment created",
		zap.String("payment_id", pay.ID.Hex()),
		zap.String("registration_id", regID.Hex()),
		zap.Float64("final_amount", pay.FinalAmount),
	)
	return pay, nil
}

// Get returns a payment visible to the caller.
func (s *Service) Get(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Payment, error) {
	pay, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewPayment(p, pay) {
		return nil, apperrors.ErrForbidden
	}
	return pay, nil
}

// List returns all payments to admins, received payments to organizers and own payments
// to everyone else.
func (s *Service) List(ctx context.Context, p authz.Principal, q ListQuery) ([]models.Payment, error) {
	f := Filter{Status: q.Status, CampID: q.CampID, Limit: q.Limit, Skip: q.Skip}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	switch p.Role {
	case models.RoleAdmin:
	case models.RoleOrganizer:
		f.OrganizerID = &p.UserID
	default:
		f.UserID = &p.UserID
	}
	return s.store.List(ctx, f)
}

// CheckPayable returns the caller's pending payment so a slip can be uploaded for it.
func (s *Service) CheckPayable(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Payment, error) {
	pay, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay.UserID != p.UserID && !p.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	if pay.Status != models.PaymentPending {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Payment is "+string(pay.Status))
	}
	return pay, nil
}

// AttachSlip records the slip, starts the escrow hold and queues automatic verification.
func (s *Service) AttachSlip(ctx context.Context, p authz.Principal, id primitive.ObjectID, slipURL string) (*models.Payment, error) {
	slipURL = strings.TrimSpace(slipURL)
	if slipURL == "" {
		return nil, apperrors.ErrSlipRequired
	}
	if _, err := s.CheckPayable(ctx, p, id); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	releaseAt := now.Add(s.Hold())
	pay, err := s.store.Transition(ctx, id, []models.PaymentStatus{models.PaymentPending}, nil, bson.M{
		"status":          models.PaymentCompleted,
		"slipUrl":         slipURL,
		"paidAt":          now,
		"autoReleaseDate": releaseAt,
	})
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Payment is no longer pending")
	}
	s.transitioned(models.PaymentCompleted)
	if s.jobs != nil {
		if err := s.jobs.EnqueueSlipVerify(ctx, queue.SlipVerifyPayload{PaymentID: id.Hex()}); err != nil {
			s.logger.Warn("enqueue slip verification failed", zap.Error(err), zap.String("payment_id", id.Hex()))
		}
	}
	return pay, nil
}

// RequestVerification runs automatic slip verification on behalf of a caller who can see
// the payment.
func (s *Service) RequestVerification(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Payment, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return s.VerifySlip(ctx, id)
}

// VerifySlip reads the payment's slip and compares it with what was expected. A match marks
// the slip verified and approves the registration; anything else flags the payment for
// manual review. The status stays completed either way.
func (s *Service) VerifySlip(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	pay, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay.Status != models.PaymentCompleted {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Only completed payments can be verified (status: "+string(pay.Status)+")")
	}
	if pay.SlipVerified {
		return pay, nil
	}
	if pay.SlipURL == "" {
		return nil, apperrors.ErrSlipRequired
	}
	if s.slips == nil {
		return nil, apperrors.Clone(apperrors.ErrUnavailable, "Slip verification is not configured")
	}

	set := bson.M{}
	result, err := s.slips.Verify(ctx, pay.SlipURL)
	switch {
	case errors.Is(err, slipverify.ErrUnreadable):
		set["verificationIssues"] = []string{"slip could not be read"}
	case err != nil:
		return nil, err
	default:
		issues := slipverify.Check(result, s.expectation(pay))
		if result.TransRef != "" {
			used, err := s.store.TransRefUsed(ctx, result.TransRef, pay.ID)
			if err != nil {
				return nil, err
			}
			if used {
				issues = append(issues, "slip already used for another payment")
			}
		}
		set["slipData"] = &models.SlipData{
			TransRef:        result.TransRef,
			Amount:          result.Amount,
			TransferredAt:   result.Date,
			ReceiverName:    result.ReceiverName,
			ReceiverAccount: result.ReceiverAccount,
			SenderName:      result.SenderName,
		}
		set["verificationIssues"] = issues
	}

	issues, _ := set["verificationIssues"].([]string)
	verified := len(issues) == 0
	set["slipVerified"] = verified
	set["requiresManualReview"] = !verified
	if verified {
		set["verifiedAt"] = s.now().UTC()
	}
	updated, err := s.store.Transition(ctx, id, []models.PaymentStatus{models.PaymentCompleted}, bson.M{"slipVerified": false}, set)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return s.load(ctx, id)
	}
	if !verified {
		s.transitioned("manual_review")
		s.logger.Info("slip needs manual review", zap.String("payment_id", id.Hex()), zap.Strings("issues", issues))
		return updated, nil
	}
	s.transitioned("verified")
	s.logger.Info("slip verified", zap.String("payment_id", id.Hex()))
	s.afterApproval(ctx, updated)
	return updated, nil
}

func (s *Service) expectation(pay *models.Payment) slipverify.Expectation {
	return slipverify.Expectation{
		Amount:          pay.FinalAmount,
		NotBefore:       pay.CreatedAt.Add(-24 * time.Hour),
		NotAfter:        s.now().UTC().Add(5 * time.Minute),
		ReceiverAccount: s.cfg.ReceiverAccount,
		ReceiverName:    s.cfg.ReceiverName,
	}
}

// Approve manually accepts a slip. A pending payment with a slip is completed at the same time.
func (s *Service) Approve(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Payment, error) {
	pay, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanReviewPayment(p, pay) {
		return nil, apperrors.ErrForbidden
	}
	if pay.SlipURL == "" {
		return nil, apperrors.ErrSlipRequired
	}
	now := s.now().UTC()
	set := bson.M{
		"status":               models.PaymentCompleted,
		"slipVerified":         true,
		"requiresManualReview": false,
		"verifiedBy":           p.UserID,
		"verifiedAt":           now,
	}
	if pay.PaidAt == nil {
		set["paidAt"] = now
	}
	if pay.AutoReleaseDate == nil {
		set["autoReleaseDate"] = now.Add(s.Hold())
	}
	updated, err := s.store.Transition(ctx, id, []models.PaymentStatus{models.PaymentPending, models.PaymentCompleted}, nil, set)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Payment cannot be approved (status: "+string(pay.Status)+")")
	}
	s.transitioned("verified")
	s.logger.Info("payment approved", zap.String("payment_id", id.Hex()), zap.String("by", p.UserID.Hex()))
	s.afterApproval(ctx, updated)
	return updated, nil
}

// Reject cancels the payment and rejects its registration.
func (s *Service) Reject(ctx context.Context, p authz.Principal, id primitive.ObjectID, reason string) (*models.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("reason is required")
	}
	pay, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanReviewPayment(p, pay) {
		return nil, apperrors.ErrForbidden
	}
	now := s.now().UTC()
	updated, err := s.store.Transition(ctx, id, []models.PaymentStatus{models.PaymentPending, models.PaymentCompleted}, nil, bson.M{
		"status":               models.PaymentCancelled,
		"slipVerified":         false,
		"requiresManualReview": false,
		"rejectedBy":           p.UserID,
		"rejectedAt":           now,
		"rejectionReason":      reason,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Payment cannot be rejected (status: "+string(pay.Status)+")")
	}
	s.transitioned(models.PaymentCancelled)
	s.logger.Info("payment rejected", zap.String("payment_id", id.Hex()), zap.String("by", p.UserID.Hex()))
	if updated.PromoCode != "" && s.promos != nil {
		s.promos.Release(ctx, updated.PromoCode)
	}

	reg, err := s.regs.Transition(ctx, updated.RegistrationID,
		[]models.RegistrationStatus{models.RegistrationPending, models.RegistrationApproved, models.RegistrationConfirmed},
		bson.M{
			"status":     models.RegistrationRejected,
			"note":       "Payment rejected: " + reason,
			"reviewedAt": now,
			"reviewedBy": p.UserID,
		},
	)
	if err != nil {
		s.logger.Error("reject registration after payment rejection", zap.Error(err), zap.String("payment_id", id.Hex()))
	} else if reg != nil {
		if _, err := s.camps.ReleaseSeat(ctx, reg.CampID); err != nil {
			s.logger.Error("release seat failed", zap.Error(err), zap.String("camp_id", reg.CampID.Hex()))
		}
	}
	if s.notifier != nil {
		s.notifier.PaymentRejected(ctx, s.payerEmail(ctx, updated), updated)
	}
	return updated, nil
}

// Confirm moves a verified payment to confirmed. Admin only.
func (s *Service) Confirm(ctx context.Context, p authz.Principal, id primitive.ObjectID) (*models.Payment, error) {
	if !p.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	pay, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Transition(ctx, id, []models.PaymentStatus{models.PaymentCompleted}, bson.M{"slipVerified": true}, bson.M{
		"status":      models.PaymentConfirmed,
		"confirmedAt": s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperrors.Clone(apperrors.ErrInvalidTransition, "Only verified completed payments can be confirmed (status: "+string(pay.Status)+")")
	}
	s.transitioned(models.PaymentConfirmed)
	return updated, nil
}

// QRCode renders a PromptPay QR for the payment's final amount.
func (s *Service) QRCode(ctx context.Context, p authz.Principal, id primitive.ObjectID, size int) ([]byte, error) {
	if s.cfg.PromptPayID == "" {
		return nil, apperrors.Clone(apperrors.ErrUnavailable, "PromptPay is not configured")
	}
	pay, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return promptpay.PNG(s.cfg.PromptPayID, decimal.NewFromFloat(pay.FinalAmount), size)
}

// ReleaseDue ends the escrow hold of every payment due at now, up to limit, and records
// each payout. It returns how many payments were released.
func (s *Service) ReleaseDue(ctx context.Context, now time.Time, limit int64) (int, error) {
	due, err := s.store.DueForRelease(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	released := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return released, err
		}
		pay, err := s.store.MarkReleased(ctx, due[i].ID, now)
		if err != nil {
			s.logger.Error("release payment failed", zap.Error(err), zap.String("payment_id", due[i].ID.Hex()))
			continue
		}
		if pay == nil {
			continue
		}
		released++
		s.transitioned(models.PaymentReleased)
		if s.ledger != nil {
			if err := s.ledger.RecordRelease(ctx, pay); err != nil {
				s.logger.Error("record payout failed", zap.Error(err), zap.String("payment_id", pay.ID.Hex()))
			}
		}
	}
	if s.metrics != nil && released > 0 {
		s.metrics.EscrowReleased(released)
	}
	if released > 0 {
		s.logger.Info("escrow released", zap.Int("count", released), zap.Int("due", len(due)))
	}
	return released, nil
}

// afterApproval approves the linked registration and tells the payer.
func (s *Service) afterApproval(ctx context.Context, pay *models.Payment) {
	_, err := s.regs.Transition(ctx, pay.RegistrationID,
		[]models.RegistrationStatus{models.RegistrationPending},
		bson.M{"status": models.RegistrationApproved, "reviewedAt": s.now().UTC()},
	)
	if err != nil {
		s.logger.Error("approve registration after payment", zap.Error(err), zap.String("payment_id", pay.ID.Hex()))
	}
	if s.notifier != nil {
		s.notifier.PaymentVerified(ctx, s.payerEmail(ctx, pay), pay)
	}
}

func (s *Service) payerEmail(ctx context.Context, pay *models.Payment) string {
	reg, err := s.regs.GetByID(ctx, pay.RegistrationID)
	if err != nil || reg == nil {
		return ""
	}
	return reg.UserEmail
}

func (s *Service) load(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	pay, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, apperrors.ErrPaymentNotFound
	}
	return pay, nil
}

func (s *Service) transitioned(to models.PaymentStatus) {
	if s.metrics != nil {
		s.metrics.PaymentTransition(string(to))
	}
}
