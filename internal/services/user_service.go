package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// UserRepository is the interface that wraps methods for user management data access
type UserRepository interface {
	// Method CountAdmins returns the number of users holding the admin role.
	CountAdmins(ctx context.Context) (int, error)
	// Method Create inserts a new user.
	//
	// If the username is taken, models.ErrConflict will be returned.
	Create(ctx context.Context, user *models.User) error
	// Method GetByUsername retrieves a user by username.
	//
	// If user does not exist, models.ErrNotFound will be returned together with nil.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// Method GetAll retrieves every user, migrated to the current schema.
	GetAll(ctx context.Context) ([]models.User, error)
	// Method UpdatePermissions replaces the permission set of a user.
	//
	// If user does not exist, models.ErrNotFound will be returned.
	UpdatePermissions(ctx context.Context, username string, permissions []models.Permission) error
	// Method Delete removes a user.
	//
	// If user does not exist, models.ErrNotFound will be returned.
	Delete(ctx context.Context, username string) error
}

// userService implements sub-account management
type userService struct {
	repo   UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService creates a new user service
func NewUserService(repo UserRepository, logger *zap.Logger) *userService {
	return &userService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// requireManager checks that caller may manage users
func requireManager(caller *models.User) error {
	if caller == nil {
		return fmt.Errorf("%w: Unauthorized", models.ErrUnauthorized)
	}
	if !caller.HasPermission(models.PermissionManageUsers) {
		return fmt.Errorf("%w: Permission denied", models.ErrPermissionDenied)
	}
	return nil
}

// checkGrant verifies that caller may hand out perms.
// Non-admins can only pass on permissions they hold and never "all".
func checkGrant(caller *models.User, perms []models.Permission) error {
	if caller.IsAdmin() {
		return nil
	}
	for _, p := range perms {
		if p == models.PermissionAll {
			return fmt.Errorf("%w: Permission denied: Cannot grant all permissions", models.ErrPermissionDenied)
		}
		if !caller.HasPermission(p) {
			return fmt.Errorf("%w: Permission denied: Cannot grant %s", models.ErrPermissionDenied, p)
		}
	}
	return nil
}

// checkTarget verifies that caller may modify target
func checkTarget(caller, target *models.User) error {
	if target.IsAdmin() && !caller.IsAdmin() {
		return fmt.Errorf("%w: Cannot modify an admin", models.ErrPermissionDenied)
	}
	return nil
}

// ListUsers returns the profiles of all users
func (s *userService) ListUsers(ctx context.Context, caller *models.User) ([]models.UserProfile, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}

	users, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	profiles := make([]models.UserProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}
	return profiles, nil
}

// CreateUser adds an editor with the requested permissions
func (s *userService) CreateUser(ctx context.Context, caller *models.User, req *models.CreateUserRequest) error {
	if err := requireManager(caller); err != nil {
		return err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return fmt.Errorf("%w: Missing fields", models.ErrValidation)
	}

	perms, err := models.ParsePermissions(req.Permissions)
	if err != nil {
		return err
	}
	if err := checkGrant(caller, perms); err != nil {
		return err
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
		Role:          models.RoleEditor,
		Permissions:   perms,
		SchemaVersion: models.CurrentUserSchema,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user created", zap.String("username", username), zap.String("by", caller.Username))
	return nil
}

// UpdatePermissions replaces the permission set of a user
func (s *userService) UpdatePermissions(ctx context.Context, caller *models.User, req *models.UpdatePermissionsRequest) error {
	if err := requireManager(caller); err != nil {
		return err
	}
	if req.Username == "" {
		return fmt.Errorf("%w: Missing username", models.ErrValidation)
	}

	perms, err := models.ParsePermissions(req.Permissions)
	if err != nil {
		return err
	}

	target, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		return err
	}
	if err := checkTarget(caller, target); err != nil {
		return err
	}
	if err := checkGrant(caller, perms); err != nil {
		return err
	}

	if err := s.repo.UpdatePermissions(ctx, req.Username, perms); err != nil {
		return err
	}

	s.logger.Info("user permissions updated",
		zap.String("username", req.Username),
		zap.Strings("permissions", permissionStrings(perms)),
		zap.String("by", caller.Username),
	)
	return nil
}

// DeleteUser removes a user. Callers cannot delete themselves or the last admin.
func (s *userService) DeleteUser(ctx context.Context, caller *models.User, username string) error {
	if err := requireManager(caller); err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: Missing username", models.ErrValidation)
	}
	if username == caller.Username {
		return fmt.Errorf("%w: Cannot delete yourself", models.ErrPermissionDenied)
	}

	target, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := checkTarget(caller, target); err != nil {
		return err
	}

	if target.IsAdmin() {
		admins, err := s.repo.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return fmt.Errorf("%w: Cannot delete the only admin", models.ErrPermissionDenied)
		}
	}

	if err := s.repo.Delete(ctx, username); err != nil {
		return err
	}

	s.logger.Info("user deleted", zap.String("username", username), zap.String("by", caller.Username))
	return nil
}

func permissionStrings(perms []models.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
