// Package notify renders user-facing emails and hands them to the job queue.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/pkg/queue"
)

// Enqueuer accepts email jobs.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Notifier builds email jobs for domain events.
type Notifier struct {
	jobs   Enqueuer
	logger *zap.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(jobs Enqueuer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{jobs: jobs, logger: logger}
}

// SendOTP queues a login code. Failure is returned because the caller cannot log in without it.
func (n *Notifier) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	return n.jobs.EnqueueEmail(ctx, queue.EmailPayload{
		Kind:      models.EmailKindOTP,
		Recipient: email,
		Subject:   "Your login code",
		Text:      fmt.Sprintf("Your login code is %s. It expires in %d minutes.", code, int(ttl.Minutes())),
	})
}

// RegistrationReceived tells the applicant their application was recorded.
func (n *Notifier) RegistrationReceived(ctx context.Context, reg *models.Registration, camp *models.Camp) {
	n.enqueue(ctx, queue.EmailPayload{
		Kind:      models.EmailKindRegistrationReceived,
		Recipient: reg.UserEmail,
		Subject:   "Application received: " + camp.Name,
		Text:      fmt.Sprintf("Hi %s, we received your application for %s. The organizer will review it soon.", reg.UserName, camp.Name),
		RefID:     reg.ID.Hex(),
	})
}

// RegistrationReviewed tells the applicant the organizer's decision.
func (n *Notifier) RegistrationReviewed(ctx context.Context, reg *models.Registration, campName string) {
	text := fmt.Sprintf("Hi %s, your application for %s was %s.", reg.UserName, campName, reg.Status)
	if reg.Note != "" {
		text += " Note: " + reg.Note
	}
	n.enqueue(ctx, queue.EmailPayload{
		Kind:      models.EmailKindRegistrationReviewed,
		Recipient: reg.UserEmail,
		Subject:   fmt.Sprintf("Application %s: %s", reg.Status, campName),
		Text:      text,
		RefID:     reg.ID.Hex(),
	})
}

// PaymentVerified tells the payer their slip was accepted.
func (n *Notifier) PaymentVerified(ctx context.Context, email string, pay *models.Payment) {
	n.enqueue(ctx, queue.EmailPayload{
		Kind:      models.EmailKindPaymentVerified,
		Recipient: email,
		Subject:   "Payment verified",
		Text:      fmt.Sprintf("Your payment of %.2f THB has been verified. See you at camp!", pay.FinalAmount),
		RefID:     pay.ID.Hex(),
	})
}

// PaymentRejected tells the payer their slip was refused.
func (n *Notifier) PaymentRejected(ctx context.Context, email string, pay *models.Payment) {
	n.enqueue(ctx, queue.EmailPayload{
		Kind:      models.EmailKindPaymentRejected,
		Recipient: email,
		Subject:   "Payment rejected",
		Text:      fmt.Sprintf("Your payment slip was rejected: %s", pay.RejectionReason),
		RefID:     pay.ID.Hex(),
	})
}

// enqueue is best effort; a lost notification must not fail the business operation.
func (n *Notifier) enqueue(ctx context.Context, p queue.EmailPayload) {
	if p.Recipient == "" {
		return
	}
	if err := n.jobs.EnqueueEmail(ctx, p); err != nil {
		n.logger.Warn("enqueue email failed", zap.Error(err), zap.String("kind", p.Kind), zap.String("ref_id", p.RefID))
	}
}
