// Package app connects the stores and builds the services shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/campverse/backend/config"
	"github.com/campverse/backend/internal/auth"
	"github.com/campverse/backend/internal/camps"
	"github.com/campverse/backend/internal/emaillogs"
	"github.com/campverse/backend/internal/metrics"
	"github.com/campverse/backend/internal/notify"
	"github.com/campverse/backend/internal/payments"
	"github.com/campverse/backend/internal/payouts"
	"github.com/campverse/backend/internal/promocodes"
	"github.com/campverse/backend/internal/registrations"
	"github.com/campverse/backend/internal/scheduler"
	"github.com/campverse/backend/internal/slipverify"
	"github.com/campverse/backend/internal/users"
	"github.com/campverse/backend/internal/worker"
	"github.com/campverse/backend/pkg/database"
	"github.com/campverse/backend/pkg/queue"
	"github.com/campverse/backend/pkg/redis"
	"github.com/campverse/backend/pkg/storage"
)

// App holds connections, repositories and services.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	mongo *mongo.Client
	pool  *pgxpool.Pool
	redis *redis.Client

	Queue    *queue.Queue
	Storage  *storage.S3 // nil when uploads are disabled
	Ledger   *payouts.Ledger
	Tokens   *auth.JWTService
	Notifier *notify.Notifier

	UserRepo         *users.Repository
	OTPRepo          *auth.OTPRepository
	CampRepo         *camps.Repository
	RegistrationRepo *registrations.Repository
	PaymentRepo      *payments.Repository
	PromoRepo        *promocodes.Repository
	EmailLogRepo     *emaillogs.Repository

	Auth          *auth.Service
	Users         *users.Service
	Camps         *camps.Service
	Registrations *registrations.Service
	Promos        *promocodes.Service
	Payments      *payments.Service
}

// New connects MongoDB, Redis and, when configured, PostgreSQL and S3, then builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	var err error
	a.mongo, err = database.NewMongoClient(ctx, cfg.Mongo.URI, logger)
	if err != nil {
		return nil, err
	}
	db := a.mongo.Database(cfg.Mongo.Database)

	a.redis, err = redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Queue = queue.NewQueue(a.redis.Client, logger)

	if cfg.Database.URL != "" {
		a.pool, err = database.NewPostgresPool(ctx, cfg.Database.URL, logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if err := database.Migrate(ctx, a.pool); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.Ledger = payouts.NewLedger(a.pool)
	} else {
		logger.Warn("DATABASE_URL not set, payout ledger disabled")
	}

	if cfg.AWS.ImagesBucket != "" && cfg.AWS.Region != "" {
		a.Storage, err = storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ImagesBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			a.Storage = nil
		}
	}

	a.UserRepo = users.NewRepository(db)
	a.OTPRepo = auth.NewOTPRepository(db)
	a.CampRepo = camps.NewRepository(db)
	a.RegistrationRepo = registrations.NewRepository(db)
	a.PaymentRepo = payments.NewRepository(db)
	a.PromoRepo = promocodes.NewRepository(db)
	a.EmailLogRepo = emaillogs.NewRepository(db)
	if err := a.ensureIndexes(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	validate := validator.New()
	a.Tokens = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	a.Notifier = notify.NewNotifier(a.Queue, logger)

	a.Auth = auth.NewService(a.UserRepo, a.OTPRepo, a.Notifier, a.Tokens, cfg.OTP.TTL, cfg.OTP.MaxAttempts, logger)
	a.Users = users.NewService(a.UserRepo, logger)
	a.Camps = camps.NewService(a.CampRepo, a.RegistrationRepo, validate, logger)
	a.Registrations = registrations.NewService(a.RegistrationRepo, a.CampRepo, a.Notifier, a.Metrics, logger)
	a.Promos = promocodes.NewService(a.PromoRepo, validate, logger)

	deps := payments.Deps{
		Store:         a.PaymentRepo,
		Registrations: a.RegistrationRepo,
		Camps:         a.CampRepo,
		Promos:        a.Promos,
		Jobs:          a.Queue,
		Notifier:      a.Notifier,
		Metrics:       a.Metrics,
	}
	if slips := slipverify.NewClient(cfg.SlipVerify, logger); slips != nil {
		deps.Slips = slips
	} else {
		logger.Warn("SLIP_VERIFY_URL not set, slips go to manual review")
	}
	if a.Ledger != nil {
		deps.Ledger = a.Ledger
	}
	a.Payments = payments.NewService(deps, payments.Config{
		HoldDays:        cfg.Escrow.HoldDays,
		ReceiverAccount: cfg.SlipVerify.ReceiverAccount,
		ReceiverName:    cfg.SlipVerify.ReceiverName,
		PromptPayID:     cfg.PromptPay.ID,
	}, logger)

	return a, nil
}

func (a *App) ensureIndexes(ctx context.Context) error {
	for _, ix := range []interface {
		EnsureIndexes(ctx context.Context) error
	}{a.UserRepo, a.OTPRepo, a.CampRepo, a.RegistrationRepo, a.PaymentRepo, a.PromoRepo, a.EmailLogRepo} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Processor builds the queue consumer.
func (a *App) Processor() *worker.Processor {
	return worker.NewProcessor(a.Queue, notify.NewMailer(a.Config.Email, a.Logger), a.EmailLogRepo, a.Payments, a.Metrics, a.Logger)
}

// Scheduler builds the escrow release cron.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.Config.Escrow.ReleaseCron, a.Payments, a.Config.Escrow.ReleaseBatch, a.Logger)
}

// Close releases every open connection.
func (a *App) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.Logger.Warn("mongo disconnect", zap.Error(err))
		}
	}
}
