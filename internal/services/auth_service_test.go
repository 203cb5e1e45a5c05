package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap/zaptest"
)

// mockAuthUserRepository is an in-memory implementation of AuthUserRepository
type mockAuthUserRepository struct {
	users    map[string]*models.User
	err      error
	countErr error
}

func newMockAuthUserRepository(users ...*models.User) *mockAuthUserRepository {
	m := &mockAuthUserRepository{users: map[string]*models.User{}}
	for _, u := range users {
		m.users[u.Username] = u
	}
	return m
}

func (m *mockAuthUserRepository) Count(ctx context.Context) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.users), nil
}

func (m *mockAuthUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.users[user.Username]; ok {
		return models.ErrConflict
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockAuthUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *mockAuthUserRepository) GetFirstAdmin(ctx context.Context) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	var first *models.User
	for _, u := range m.users {
		if u.IsAdmin() && (first == nil || u.CreatedAt < first.CreatedAt) {
			first = u
		}
	}
	if first == nil {
		return nil, models.ErrNotFound
	}
	copied := *first
	return &copied, nil
}

// mockSessionRepository is an in-memory implementation of SessionRepository
type mockSessionRepository struct {
	sessions map[string]string
	ttl      time.Duration
	err      error
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{sessions: map[string]string{}}
}

func (m *mockSessionRepository) Create(ctx context.Context, token, username string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.sessions[token] = username
	m.ttl = ttl
	return nil
}

func (m *mockSessionRepository) GetUsername(ctx context.Context, token string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	username, ok := m.sessions[token]
	if !ok {
		return "", models.ErrNotFound
	}
	return username, nil
}

func (m *mockSessionRepository) Delete(ctx context.Context, token string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.sessions, token)
	return nil
}

// mockLoginAttemptRepository is an in-memory implementation of LoginAttemptRepository
type mockLoginAttemptRepository struct {
	counts   map[string]int
	countErr error
	incrErr  error
}

func newMockLoginAttemptRepository() *mockLoginAttemptRepository {
	return &mockLoginAttemptRepository{counts: map[string]int{}}
}

func (m *mockLoginAttemptRepository) Count(ctx context.Context, ip string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.counts[ip], nil
}

func (m *mockLoginAttemptRepository) Increment(ctx context.Context, ip string, window time.Duration) (int, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.counts[ip]++
	return m.counts[ip], nil
}

func (m *mockLoginAttemptRepository) Reset(ctx context.Context, ip string) error {
	delete(m.counts, ip)
	return nil
}

// mockCaptchaVerifier is a mock implementation of CaptchaVerifier
type mockCaptchaVerifier struct {
	reject bool
	tokens []string
}

func (m *mockCaptchaVerifier) Verify(ctx context.Context, token, ip string) bool {
	m.tokens = append(m.tokens, token)
	return !m.reject
}

// mockAlertEnqueuer is a mock implementation of AlertEnqueuer
type mockAlertEnqueuer struct {
	alerts []models.LockoutAlert
	err    error
}

func (m *mockAlertEnqueuer) EnqueueLockoutAlert(ctx context.Context, alert models.LockoutAlert) error {
	m.alerts = append(m.alerts, alert)
	return m.err
}

type authFixture struct {
	users    *mockAuthUserRepository
	sessions *mockSessionRepository
	attempts *mockLoginAttemptRepository
	captcha  *mockCaptchaVerifier
	alerts   *mockAlertEnqueuer
}

func newAuthFixture(t *testing.T, users ...*models.User) (*authService, *authFixture) {
	f := &authFixture{
		users:    newMockAuthUserRepository(users...),
		sessions: newMockSessionRepository(),
		attempts: newMockLoginAttemptRepository(),
		captcha:  &mockCaptchaVerifier{},
		alerts:   &mockAlertEnqueuer{},
	}
	svc := NewAuthService(f.users, f.sessions, f.attempts, f.captcha, f.alerts, zaptest.NewLogger(t))
	return svc, f
}

func userWithPassword(t *testing.T, username, password string, role models.Role, perms ...models.Permission) *models.User {
	hash, salt, err := HashPassword(password, nil)
	require.NoError(t, err)
	if perms == nil {
		perms = []models.Permission{}
	}
	return &models.User{
		Username:      username,
		PasswordHash:  hash,
		Salt:          salt,
		CreatedAt:     1000,
		Role:          role,
		Permissions:   perms,
		SchemaVersion: models.CurrentUserSchema,
	}
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name          string
		existing      []*models.User
		req           *models.RegisterRequest
		rejectCaptcha bool
		countErr      error
		expectedError error
		expectAnyErr  bool
	}{
		{
			name: "first admin",
			req:  &models.RegisterRequest{Username: "admin", Password: "pw1"},
		},
		{
			name:          "already set up",
			existing:      []*models.User{{Username: "root", Role: models.RoleAdmin}},
			req:           &models.RegisterRequest{Username: "admin", Password: "pw1"},
			expectedError: models.ErrSetupCompleted,
		},
		{
			name:          "missing password",
			req:           &models.RegisterRequest{Username: "admin"},
			expectedError: models.ErrValidation,
		},
		{
			name:          "blank username",
			req:           &models.RegisterRequest{Username: "  ", Password: "pw1"},
			expectedError: models.ErrValidation,
		},
		{
			name:          "captcha rejected",
			req:           &models.RegisterRequest{Username: "admin", Password: "pw1"},
			rejectCaptcha: true,
			expectedError: models.ErrCaptchaFailed,
		},
		{
			name:         "count error",
			req:          &models.RegisterRequest{Username: "admin", Password: "pw1"},
			countErr:     errors.New("db down"),
			expectAnyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newAuthFixture(t, tt.existing...)
			f.captcha.reject = tt.rejectCaptcha
			f.users.countErr = tt.countErr

			err := svc.Register(context.Background(), tt.req, "1.2.3.4")

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			case tt.expectAnyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				user := f.users.users["admin"]
				require.NotNil(t, user)
				assert.Equal(t, models.RoleAdmin, user.Role)
				assert.Equal(t, []models.Permission{models.PermissionAll}, user.Permissions)
				assert.True(t, VerifyPassword("pw1", user.PasswordHash, user.Salt))
			}
		})
	}
}

func TestAuthService_Register_OnlyOnce(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, &models.RegisterRequest{Username: "admin", Password: "pw1"}, "ip"))

	payloads := []*models.RegisterRequest{
		{Username: "admin", Password: "pw1"},
		{Username: "other", Password: "pw2"},
		{},
	}
	for _, req := range payloads {
		assert.ErrorIs(t, svc.Register(ctx, req, "ip"), models.ErrSetupCompleted)
	}
}

func TestAuthService_IsSetup(t *testing.T) {
	svc, _ := newAuthFixture(t)
	setup, err := svc.IsSetup(context.Background())
	require.NoError(t, err)
	assert.False(t, setup)

	svc, _ = newAuthFixture(t, &models.User{Username: "admin"})
	setup, err = svc.IsSetup(context.Background())
	require.NoError(t, err)
	assert.True(t, setup)
}

func TestAuthService_Login(t *testing.T) {
	admin := userWithPassword(t, "admin", "pw1", models.RoleAdmin, models.PermissionAll)

	tests := []struct {
		name          string
		req           *models.LoginRequest
		priorFailures int
		rejectCaptcha bool
		expectedError error
	}{
		{
			name: "success",
			req:  &models.LoginRequest{Username: "admin", Password: "pw1"},
		},
		{
			name:          "wrong password",
			req:           &models.LoginRequest{Username: "admin", Password: "nope"},
			expectedError: models.ErrInvalidCredentials,
		},
		{
			name:          "unknown user",
			req:           &models.LoginRequest{Username: "ghost", Password: "pw1"},
			expectedError: models.ErrInvalidCredentials,
		},
		{
			name:          "captcha rejected",
			req:           &models.LoginRequest{Username: "admin", Password: "pw1", TurnstileToken: "bad"},
			rejectCaptcha: true,
			expectedError: models.ErrCaptchaFailed,
		},
		{
			name:          "locked out even with the right password",
			req:           &models.LoginRequest{Username: "admin", Password: "pw1"},
			priorFailures: 6,
			expectedError: models.ErrTooManyAttempts,
		},
		{
			name:          "five prior failures still allowed",
			req:           &models.LoginRequest{Username: "admin", Password: "pw1"},
			priorFailures: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newAuthFixture(t, admin)
			f.captcha.reject = tt.rejectCaptcha
			f.attempts.counts["1.2.3.4"] = tt.priorFailures

			resp, err := svc.Login(context.Background(), tt.req, "1.2.3.4")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, "admin", resp.User.Username)
			assert.Equal(t, models.RoleAdmin, resp.User.Role)
			assert.Equal(t, "admin", f.sessions.sessions[resp.Token])
			assert.Equal(t, SessionTTL, f.sessions.ttl)
			assert.Zero(t, f.attempts.counts["1.2.3.4"])
		})
	}
}

func TestAuthService_Login_LockoutAfterFiveFailures(t *testing.T) {
	svc, f := newAuthFixture(t, userWithPassword(t, "admin", "pw1", models.RoleAdmin))
	ctx := context.Background()
	wrong := &models.LoginRequest{Username: "admin", Password: "wrong"}

	for i := 1; i <= MaxLoginFailures; i++ {
		_, err := svc.Login(ctx, wrong, "1.2.3.4")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := svc.Login(ctx, wrong, "1.2.3.4")
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
	require.Len(t, f.alerts.alerts, 1)
	assert.Equal(t, "1.2.3.4", f.alerts.alerts[0].IP)
	assert.Equal(t, "admin", f.alerts.alerts[0].Username)
	assert.Equal(t, MaxLoginFailures+1, f.alerts.alerts[0].Attempts)

	_, err = svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "pw1"}, "1.2.3.4")
	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
	assert.Len(t, f.alerts.alerts, 1)

	// Other addresses are unaffected
	resp, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "pw1"}, "5.6.7.8")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthService_Login_SuccessResetsCounter(t *testing.T) {
	svc, f := newAuthFixture(t, userWithPassword(t, "admin", "pw1", models.RoleAdmin))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "wrong"}, "ip")
	}
	assert.Equal(t, 3, f.attempts.counts["ip"])

	_, err := svc.Login(ctx, &models.LoginRequest{Username: "admin", Password: "pw1"}, "ip")
	require.NoError(t, err)
	assert.Zero(t, f.attempts.counts["ip"])
}

func TestAuthService_Login_AlertFailureDoesNotChangeOutcome(t *testing.T) {
	svc, f := newAuthFixture(t, userWithPassword(t, "admin", "pw1", models.RoleAdmin))
	f.alerts.err = errors.New("queue down")
	f.attempts.counts["ip"] = MaxLoginFailures

	_, err := svc.Login(context.Background(), &models.LoginRequest{Username: "admin", Password: "x"}, "ip")

	assert.ErrorIs(t, err, models.ErrTooManyAttempts)
	assert.Len(t, f.alerts.alerts, 1)
}

func TestAuthService_Authenticate(t *testing.T) {
	admin := userWithPassword(t, "admin", "pw1", models.RoleAdmin, models.PermissionAll)
	editor := userWithPassword(t, "ed", "pw2", models.RoleEditor, models.PermissionManageContents)
	editor.CreatedAt = 2000

	tests := []struct {
		name             string
		token            string
		sessions         map[string]string
		sessionErr       error
		expectedUsername string
		expectedRole     models.Role
		expectError      bool
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:     "unknown token",
			token:    "nope",
			sessions: map[string]string{},
		},
		{
			name:             "editor session",
			token:            "t1",
			sessions:         map[string]string{"t1": "ed"},
			expectedUsername: "ed",
			expectedRole:     models.RoleEditor,
		},
		{
			name:             "legacy session resolves to first admin",
			token:            "t2",
			sessions:         map[string]string{"t2": legacySessionValue},
			expectedUsername: "admin",
			expectedRole:     models.RoleAdmin,
		},
		{
			name:     "deleted user",
			token:    "t3",
			sessions: map[string]string{"t3": "gone"},
		},
		{
			name:        "store error",
			token:       "t4",
			sessionErr:  errors.New("redis down"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newAuthFixture(t, admin, editor)
			if tt.sessions != nil {
				f.sessions.sessions = tt.sessions
			}
			f.sessions.err = tt.sessionErr

			user, err := svc.Authenticate(context.Background(), tt.token)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.expectedUsername == "" {
				assert.Nil(t, user)
				return
			}
			require.NotNil(t, user)
			assert.Equal(t, tt.expectedUsername, user.Username)
			assert.Equal(t, tt.expectedRole, user.Role)
		})
	}
}

func TestAuthService_Logout(t *testing.T) {
	svc, f := newAuthFixture(t)
	f.sessions.sessions["tok"] = "admin"

	require.NoError(t, svc.Logout(context.Background(), "tok"))
	assert.Empty(t, f.sessions.sessions)

	assert.ErrorIs(t, svc.Logout(context.Background(), ""), models.ErrUnauthorized)
}
