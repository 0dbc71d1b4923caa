package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campverse/backend/internal/models"
	apperrors "github.com/campverse/backend/pkg/errors"
)

type memUsers struct {
	byEmail map[string]*models.User
}

func (m *memUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.byEmail[email], nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	if _, ok := m.byEmail[u.Email]; ok {
		return apperrors.ErrEmailTaken
	}
	u.ID = primitive.NewObjectID()
	m.byEmail[u.Email] = u
	return nil
}

type memOTPs struct {
	mu      sync.Mutex
	list    []*models.OTP
	granted int
}

func (m *memOTPs) Create(_ context.Context, otp *models.OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp.ID = primitive.NewObjectID()
	m.list = append(m.list, otp)
	return nil
}

func (m *memOTPs) InvalidateActive(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.list {
		if o.Email == email {
			o.Used = true
		}
	}
	return nil
}

func (m *memOTPs) Latest(_ context.Context, email string) (*models.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.list) - 1; i >= 0; i-- {
		if o := m.list[i]; o.Email == email && !o.Used {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memOTPs) TakeAttempt(_ context.Context, id primitive.ObjectID, max int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.list {
		if o.ID == id && !o.Used && o.Attempts < max {
			o.Attempts++
			m.granted++
			return true, nil
		}
	}
	return false, nil
}

func (m *memOTPs) Consume(_ context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.list {
		if o.ID == id && !o.Used {
			o.Used = true
			return true, nil
		}
	}
	return false, nil
}

type captureSender struct {
	codes map[string]string
}

func (c *captureSender) SendOTP(_ context.Context, email, code string, _ time.Duration) error {
	c.codes[email] = code
	return nil
}

func newTestService() (*Service, *memUsers, *captureSender) {
	svc, users, sender, _ := newTestServiceWithOTPs()
	return svc, users, sender
}

func newTestServiceWithOTPs() (*Service, *memUsers, *captureSender, *memOTPs) {
	users := &memUsers{byEmail: map[string]*models.User{}}
	sender := &captureSender{codes: map[string]string{}}
	otps := &memOTPs{}
	svc := NewService(users, otps, sender, NewJWTService("test-secret", 1), 10*time.Minute, 5, nil)
	return svc, users, sender, otps
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Email: "Camper@Example.com ", Name: "Camper"})
	require.NoError(t, err)
	assert.Equal(t, "camper@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)

	_, err = svc.Register(ctx, RegisterInput{Email: "camper@example.com", Name: "Again"})
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)

	_, err = svc.Register(ctx, RegisterInput{Email: "boss@example.com", Name: "Boss", Role: models.RoleAdmin})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	org, err := svc.Register(ctx, RegisterInput{Email: "org@example.com", Name: "Org", Role: models.RoleOrganizer})
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrganizer, org.Role)
}

func TestOTPLoginFlow(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.SendOTP(ctx, "a@example.com"))
	code := sender.codes["a@example.com"]
	require.Len(t, code, OTPLength)

	session, err := svc.VerifyOTP(ctx, "a@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)

	p, err := svc.tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, p.UserID)
	assert.Equal(t, models.RoleUser, p.Role)

	// single use
	_, err = svc.VerifyOTP(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestOTPResendInvalidatesPrevious(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.SendOTP(ctx, "a@example.com"))
	first := sender.codes["a@example.com"]
	require.NoError(t, svc.SendOTP(ctx, "a@example.com"))
	second := sender.codes["a@example.com"]

	if first != second {
		_, err = svc.VerifyOTP(ctx, "a@example.com", first)
		assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
	}
	_, err = svc.VerifyOTP(ctx, "a@example.com", second)
	assert.NoError(t, err)
}

func TestOTPExpiry(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, svc.SendOTP(ctx, "a@example.com"))

	svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = svc.VerifyOTP(ctx, "a@example.com", sender.codes["a@example.com"])
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestOTPAttemptLimit(t *testing.T) {
	svc, _, sender := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, svc.SendOTP(ctx, "a@example.com"))
	code := sender.codes["a@example.com"]

	for i := 0; i < 5; i++ {
		_, err = svc.VerifyOTP(ctx, "a@example.com", wrongCode(code))
		require.ErrorIs(t, err, apperrors.ErrInvalidOTP)
	}
	_, err = svc.VerifyOTP(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestOTPAttemptLimitUnderConcurrentGuesses(t *testing.T) {
	svc, _, sender, otps := newTestServiceWithOTPs()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	require.NoError(t, svc.SendOTP(ctx, "a@example.com"))
	code := sender.codes["a@example.com"]

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyOTP(ctx, "a@example.com", wrongCode(code))
			assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
		}()
	}
	wg.Wait()

	otps.mu.Lock()
	assert.Equal(t, 5, otps.granted)
	assert.Equal(t, 5, otps.list[0].Attempts)
	otps.mu.Unlock()

	_, err = svc.VerifyOTP(ctx, "a@example.com", code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidOTP)
}

func TestOTPUnknownAndBannedAccounts(t *testing.T) {
	svc, users, _ := newTestService()
	ctx := context.Background()

	assert.ErrorIs(t, svc.SendOTP(ctx, "ghost@example.com"), apperrors.ErrUserNotFound)

	_, err := svc.Register(ctx, RegisterInput{Email: "bad@example.com", Name: "Bad"})
	require.NoError(t, err)
	users.byEmail["bad@example.com"].IsBanned = true

	assert.ErrorIs(t, svc.SendOTP(ctx, "bad@example.com"), apperrors.ErrUserBanned)
	_, err = svc.VerifyOTP(ctx, "bad@example.com", "123456")
	assert.ErrorIs(t, err, apperrors.ErrUserBanned)
}

func TestJWTParseRejectsTampered(t *testing.T) {
	svc := NewJWTService("secret-a", 1)
	token, err := svc.Generate(primitive.NewObjectID(), "a@example.com", models.RoleAdmin)
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 1).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
