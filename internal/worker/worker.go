// Package worker consumes background jobs: outgoing emails and automatic slip verification.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/models"
	"github.com/campverse/backend/internal/notify"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/queue"
)

// JobQueue is the queue the processor drains.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// EmailLog persists delivery attempts.
type EmailLog interface {
	Record(ctx context.Context, entry *models.EmailLog) error
}

// SlipVerifier runs automatic slip verification for a payment.
type SlipVerifier interface {
	VerifySlip(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
}

// Recorder counts processed jobs.
type Recorder interface {
	JobProcessed(jobType, result string)
}

// Processor executes jobs. Slips, logs and metrics may be nil.
type Processor struct {
	queue   JobQueue
	mailer  notify.Mailer
	logs    EmailLog
	slips   SlipVerifier
	metrics Recorder
	backoff time.Duration
	logger  *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(q JobQueue, mailer notify.Mailer, logs EmailLog, slips SlipVerifier, metrics Recorder, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{queue: q, mailer: mailer, logs: logs, slips: slips, metrics: metrics, backoff: queue.RetryBackoff, logger: logger}
}

// errPermanent marks a job that will never succeed and must not be retried.
var errPermanent = errors.New("permanent job failure")

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmail:
		return p.sendEmail(ctx, job)
	case queue.JobTypeSlipVerify:
		return p.verifySlip(ctx, job)
	default:
		return fmt.Errorf("%w: unknown job type %q", errPermanent, job.Type)
	}
}

func (p *Processor) sendEmail(ctx context.Context, job *queue.Job) error {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal email payload: %v", errPermanent, err)
	}
	err := p.mailer.Send(ctx, notify.Message{
		To:      payload.Recipient,
		Subject: payload.Subject,
		Text:    payload.Text,
		HTML:    payload.HTML,
	})

	entry := &models.EmailLog{
		Kind:      payload.Kind,
		Recipient: payload.Recipient,
		Subject:   payload.Subject,
		RefID:     payload.RefID,
		Attempt:   job.Attempt + 1,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = err.Error()
	} else {
		entry.Status = models.EmailLogStatusSent
		sentAt := entry.CreatedAt
		entry.SentAt = &sentAt
	}
	if p.logs != nil {
		if lerr := p.logs.Record(ctx, entry); lerr != nil {
			p.logger.Warn("record email log failed", zap.Error(lerr), zap.String("job_id", job.ID))
		}
	}
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("kind", payload.Kind), zap.String("ref_id", payload.RefID))
	return nil
}

func (p *Processor) verifySlip(ctx context.Context, job *queue.Job) error {
	if p.slips == nil {
		return fmt.Errorf("%w: slip verification not configured", errPermanent)
	}
	var payload queue.SlipVerifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal slip payload: %v", errPermanent, err)
	}
	id, err := primitive.ObjectIDFromHex(payload.PaymentID)
	if err != nil {
		return fmt.Errorf("%w: invalid payment id %q", errPermanent, payload.PaymentID)
	}
	pay, err := p.slips.VerifySlip(ctx, id)
	if err != nil {
		// Business rejections (not found, no longer completed, disabled) will not change on retry.
		if appErr := apperrors.FromError(err); appErr.Err == nil && appErr.Status < http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		return fmt.Errorf("verify slip: %w", err)
	}
	p.logger.Info("slip job done",
		zap.String("job_id", job.ID),
		zap.String("payment_id", payload.PaymentID),
		zap.Bool("verified", pay.SlipVerified),
		zap.Bool("manual_review", pay.RequiresManualReview),
	)
	return nil
}

// Handle processes job and routes failures: permanent ones are dropped, the rest retried
// until the queue moves them to the dead-letter list. It reports whether to back off.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) bool {
	err := p.Process(ctx, job)
	switch {
	case err == nil:
		p.record(job.Type, "ok")
		return false
	case errors.Is(err, errPermanent):
		p.logger.Warn("job dropped", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
		p.record(job.Type, "dropped")
		return false
	default:
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt), zap.Error(err))
		p.record(job.Type, "retry")
		if reErr := p.queue.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		return true
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("job worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if p.Handle(ctx, job) {
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (p *Processor) record(t queue.JobType, result string) {
	if p.metrics != nil {
		p.metrics.JobProcessed(string(t), result)
	}
}
