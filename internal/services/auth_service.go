package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// Login policy
const (
	// MaxLoginFailures is the number of failures tolerated per address and window
	MaxLoginFailures = 5
	// LoginFailureWindow is how long a failure counter lives after the latest failure
	LoginFailureWindow = 15 * time.Minute
	// SessionTTL is the lifetime of a session token
	SessionTTL = 24 * time.Hour
	// legacySessionValue is what single-password deployments stored instead of a username
	legacySessionValue = "valid"
)

// AuthUserRepository is the interface that wraps methods for user data access needed by authentication
type AuthUserRepository interface {
	// Method Count returns the number of registered users.
	//
	// If some error occurs, the error will be returned together with 0.
	Count(ctx context.Context) (int, error)
	// Method Create inserts a new user.
	//
	// "user" parameter is used to create a new user.
	//
	// If the username is taken, models.ErrConflict will be returned.
	Create(ctx context.Context, user *models.User) error
	// Method GetByUsername retrieves a user by username, migrated to the current schema.
	//
	// If user does not exist, models.ErrNotFound will be returned together with nil.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// Method GetFirstAdmin retrieves the oldest admin account.
	//
	// If there is no admin, models.ErrNotFound will be returned together with nil.
	GetFirstAdmin(ctx context.Context) (*models.User, error)
}

// SessionRepository is the interface that wraps methods for session storage
type SessionRepository interface {
	// Method Create maps token to username until ttl elapses.
	Create(ctx context.Context, token, username string, ttl time.Duration) error
	// Method GetUsername returns the username stored for token.
	//
	// If the session does not exist or expired, models.ErrNotFound will be returned.
	GetUsername(ctx context.Context, token string) (string, error)
	// Method Delete removes a session.
	Delete(ctx context.Context, token string) error
}

// LoginAttemptRepository is the interface that wraps methods for failed login counters
type LoginAttemptRepository interface {
	// Method Count returns the current failure count for ip.
	Count(ctx context.Context, ip string) (int, error)
	// Method Increment adds one failure for ip, restarts its window and returns the new count.
	Increment(ctx context.Context, ip string, window time.Duration) (int, error)
	// Method Reset clears the failure count for ip.
	Reset(ctx context.Context, ip string) error
}

// CaptchaVerifier checks captcha tokens
type CaptchaVerifier interface {
	// Method Verify reports whether token is accepted for the caller at ip.
	Verify(ctx context.Context, token, ip string) bool
}

// AlertEnqueuer schedules security alerts
type AlertEnqueuer interface {
	// Method EnqueueLockoutAlert schedules a notification about a locked out address.
	EnqueueLockoutAlert(ctx context.Context, alert models.LockoutAlert) error
}

// authService implements the credential service and session resolution
type authService struct {
	userRepo    AuthUserRepository
	sessionRepo SessionRepository
	attemptRepo LoginAttemptRepository
	captcha     CaptchaVerifier
	alerts      AlertEnqueuer
	logger      *zap.Logger
	now         func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo AuthUserRepository,
	sessionRepo SessionRepository,
	attemptRepo LoginAttemptRepository,
	captcha CaptchaVerifier,
	alerts AlertEnqueuer,
	logger *zap.Logger,
) *authService {
	return &authService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		attemptRepo: attemptRepo,
		captcha:     captcha,
		alerts:      alerts,
		logger:      logger,
		now:         time.Now,
	}
}

// IsSetup reports whether the first admin has been registered
func (s *authService) IsSetup(ctx context.Context) (bool, error) {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Register creates the first admin. It is only allowed while no users exist.
func (s *authService) Register(ctx context.Context, req *models.RegisterRequest, ip string) error {
	setup, err := s.IsSetup(ctx)
	if err != nil {
		return err
	}
	if setup {
		return fmt.Errorf("%w: Setup already completed.", models.ErrSetupCompleted)
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return fmt.Errorf("%w: Missing fields", models.ErrValidation)
	}

	if !s.captcha.Verify(ctx, req.Captcha(), ip) {
		return fmt.Errorf("%w: Captcha validation failed", models.ErrCaptchaFailed)
	}

	hash, salt, err := HashPassword(req.Password, nil)
	if err != nil {
		return err
	}

	user := &models.User{
		Username:      username,
		PasswordHash:  hash,
		Salt:          salt,
		CreatedAt:     s.now().UnixMilli(),
		Role:          models.RoleAdmin,
		Permissions:   []models.Permission{models.PermissionAll},
		SchemaVersion: models.CurrentUserSchema,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost a race with a concurrent registration
			return fmt.Errorf("%w: Setup already completed.", models.ErrSetupCompleted)
		}
		return err
	}

	s.logger.Info("initial admin registered", zap.String("username", username))
	return nil
}

// Login verifies credentials and opens a session.
// Failures are counted per source address; past MaxLoginFailures the address is locked out.
func (s *authService) Login(ctx context.Context, req *models.LoginRequest, ip string) (*models.LoginResponse, error) {
	failures, err := s.attemptRepo.Count(ctx, ip)
	if err != nil {
		return nil, err
	}
	if failures > MaxLoginFailures {
		return nil, tooManyAttempts()
	}

	if !s.captcha.Verify(ctx, req.Captcha(), ip) {
		return nil, fmt.Errorf("%w: Captcha validation failed", models.ErrCaptchaFailed)
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if user == nil || !VerifyPassword(req.Password, user.PasswordHash, user.Salt) {
		return nil, s.recordFailure(ctx, ip, req.Username)
	}

	token := uuid.NewString()
	if err := s.sessionRepo.Create(ctx, token, user.Username, SessionTTL); err != nil {
		return nil, err
	}
	if err := s.attemptRepo.Reset(ctx, ip); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err), zap.String("ip", ip))
	}

	profile := user.Profile()
	profile.CreatedAt = 0
	return &models.LoginResponse{Token: token, User: profile}, nil
}

// recordFailure counts a failed login and returns the error to report
func (s *authService) recordFailure(ctx context.Context, ip, username string) error {
	count, err := s.attemptRepo.Increment(ctx, ip, LoginFailureWindow)
	if err != nil {
		s.logger.Error("failed to record login failure", zap.Error(err), zap.String("ip", ip))
	}

	if count <= MaxLoginFailures {
		return fmt.Errorf("%w: Invalid credentials", models.ErrInvalidCredentials)
	}

	if count == MaxLoginFailures+1 {
		s.logger.Warn("login locked out", zap.String("ip", ip), zap.String("username", username))
		alert := models.LockoutAlert{
			IP:       ip,
			Username: username,
			Attempts: count,
			At:       s.now().UnixMilli(),
		}
		if err := s.alerts.EnqueueLockoutAlert(ctx, alert); err != nil {
			s.logger.Error("failed to enqueue lockout alert", zap.Error(err), zap.String("ip", ip))
		}
	}
	return tooManyAttempts()
}

func tooManyAttempts() error {
	return fmt.Errorf("%w: Too many login attempts. Please try again in 15 minutes.", models.ErrTooManyAttempts)
}

// Logout removes the session behind token
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: Unauthorized", models.ErrUnauthorized)
	}
	return s.sessionRepo.Delete(ctx, token)
}

// Authenticate resolves a session token to its user.
// Unknown tokens, expired sessions and deleted users resolve to nil.
func (s *authService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	username, err := s.sessionRepo.GetUsername(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user *models.User
	if username == legacySessionValue {
		user, err = s.userRepo.GetFirstAdmin(ctx)
	} else {
		user, err = s.userRepo.GetByUsername(ctx, username)
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if username == legacySessionValue {
		user.Role = models.RoleAdmin
		user.Permissions = []models.Permission{models.PermissionAll}
	}
	return user, nil
}
