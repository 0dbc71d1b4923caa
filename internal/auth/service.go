package auth

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
	"github.com/campverse/backend/pkg/utils"
)

// OTPLength is the number of digits in a login code.
const OTPLength = 6

// UserStore is the subset of the users repository auth needs.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
}

// OTPStore persists login codes.
type OTPStore interface {
	Create(ctx context.Context, otp *models.OTP) error
	InvalidateActive(ctx context.Context, email string) error
	Latest(ctx context.Context, email string) (*models.OTP, error)
	TakeAttempt(ctx context.Context, id primitive.ObjectID, max int) (bool, error)
	Consume(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// CodeSender delivers a login code to the account holder.
type CodeSender interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email        string      `json:"email" binding:"required,email"`
	Name         string      `json:"name" binding:"required,max=120"`
	Phone        string      `json:"phone" binding:"omitempty,max=32"`
	Role         models.Role `json:"role"`
	Organization string      `json:"organization" binding:"omitempty,max=200"`
	IDCardNumber string      `json:"idCardNumber" binding:"omitempty,max=32"`
	Address      string      `json:"address" binding:"omitempty,max=500"`
}

// Session is returned after a successful login.
type Session struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Service implements sign-up and passwordless login.
type Service struct {
	users       UserStore
	otps        OTPStore
	sender      CodeSender
	tokens      *JWTService
	ttl         time.Duration
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates an auth service.
func NewService(users UserStore, otps OTPStore, sender CodeSender, tokens *JWTService, ttl time.Duration, maxAttempts int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:       users,
		otps:        otps,
		sender:      sender,
		tokens:      tokens,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Register creates an account. Admin accounts cannot be self-registered.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleOrganizer {
		return nil, apperrors.Validation("invalid role")
	}
	email := utils.NormalizeEmail(in.Email)
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.ErrEmailTaken
	}
	u := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		Organization: strings.TrimSpace(in.Organization),
		IDCardNumber: strings.TrimSpace(in.IDCardNumber),
		Address:      strings.TrimSpace(in.Address),
	}
	if u.Name == "" {
		return nil, apperrors.Validation("name is required")
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID.Hex()), zap.String("role", string(role)))
	return u, nil
}

// SendOTP issues a fresh code for a registered, unbanned account and replaces any earlier one.
func (s *Service) SendOTP(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if _, err := s.activeUser(ctx, email); err != nil {
		return err
	}
	code, err := utils.NumericCode(OTPLength)
	if err != nil {
		return err
	}
	hash, err := utils.HashSecret(code)
	if err != nil {
		return err
	}
	if err := s.otps.InvalidateActive(ctx, email); err != nil {
		return err
	}
	now := s.now().UTC()
	otp := &models.OTP{
		Email:     email,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return err
	}
	if err := s.sender.SendOTP(ctx, email, code, s.ttl); err != nil {
		return err
	}
	return nil
}

// VerifyOTP checks the code and opens a session. Each code can be used once and
// tolerates maxAttempts wrong guesses.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*Session, error) {
	email = utils.NormalizeEmail(email)
	user, err := s.activeUser(ctx, email)
	if err != nil {
		return nil, err
	}
	otp, err := s.otps.Latest(ctx, email)
	if err != nil {
		return nil, err
	}
	if otp == nil || !s.now().Before(otp.ExpiresAt) {
		return nil, apperrors.ErrInvalidOTP
	}
	// the attempt is taken before the hash is compared so parallel guesses share the budget
	granted, err := s.otps.TakeAttempt(ctx, otp.ID, s.maxAttempts)
	if err != nil {
		return nil, err
	}
	if !granted {
		// burn the code so further guesses need a new one
		_, _ = s.otps.Consume(ctx, otp.ID)
		return nil, apperrors.Clone(apperrors.ErrInvalidOTP, "Too many attempts, request a new code")
	}
	if !utils.CheckSecret(strings.TrimSpace(code), otp.CodeHash) {
		return nil, apperrors.ErrInvalidOTP
	}
	ok, err := s.otps.Consume(ctx, otp.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrInvalidOTP
	}
	token, err := s.tokens.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user.ToPublic()}, nil
}

// Me returns the account behind a session.
func (s *Service) Me(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (s *Service) activeUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	if user.IsBanned {
		return nil, apperrors.ErrUserBanned
	}
	return user, nil
}
