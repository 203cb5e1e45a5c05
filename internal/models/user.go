package models

import (
	"fmt"
	"slices"
)

// Role is a coarse permission tier
type Role string

// Role constants
const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor
}

// Permission is a fine-grained capability granted to a user
type Permission string

// Permission constants
const (
	PermissionManageContents Permission = "manage_contents"
	PermissionManageUsers    Permission = "manage_users"
	PermissionAll            Permission = "all"
)

// Valid reports whether p is a known permission
func (p Permission) Valid() bool {
	switch p {
	case PermissionManageContents, PermissionManageUsers, PermissionAll:
		return true
	}
	return false
}

// ParsePermissions converts raw strings into a deduplicated permission set.
// Unknown values are rejected with ErrValidation.
func ParsePermissions(raw []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(raw))
	for _, s := range raw {
		p := Permission(s)
		if !p.Valid() {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrValidation, s)
		}
		if !slices.Contains(perms, p) {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// User record schema versions
const (
	// UserSchemaLegacy marks records written before roles existed
	UserSchemaLegacy = 0
	// UserSchemaRoles marks records carrying role and permissions
	UserSchemaRoles = 1
	// CurrentUserSchema is the version every loaded record is migrated to
	CurrentUserSchema = UserSchemaRoles
)

// User represents an account allowed to sign in
type User struct {
	Username      string       `json:"username"`
	PasswordHash  string       `json:"-"` // Never serialize password hash
	Salt          string       `json:"-"`
	CreatedAt     int64        `json:"createdAt"`
	Role          Role         `json:"role"`
	Permissions   []Permission `json:"permissions"`
	SchemaVersion int          `json:"-"`
}

// Migrate upgrades a user record to CurrentUserSchema.
// Legacy records, and any record without a known role, become full admins.
func (u *User) Migrate() {
	if u.SchemaVersion < UserSchemaRoles || !u.Role.Valid() {
		u.Role = RoleAdmin
		u.Permissions = []Permission{PermissionAll}
	}
	if u.Permissions == nil {
		u.Permissions = []Permission{}
	}
	u.SchemaVersion = CurrentUserSchema
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasPermission reports whether the user is allowed to act with permission p
func (u *User) HasPermission(p Permission) bool {
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	return slices.Contains(u.Permissions, PermissionAll) || slices.Contains(u.Permissions, p)
}

// Profile returns the public view of the user
func (u *User) Profile() UserProfile {
	return UserProfile{
		Username:    u.Username,
		Role:        u.Role,
		Permissions: u.Permissions,
		CreatedAt:   u.CreatedAt,
	}
}

// UserProfile is a user without credentials
type UserProfile struct {
	Username    string       `json:"username"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   int64        `json:"createdAt,omitempty"`
}

// CredentialsRequest carries a username, password and an optional captcha token.
// Older clients send the captcha as turnstileToken.
type CredentialsRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	CaptchaToken   string `json:"captchaToken,omitempty"`
	TurnstileToken string `json:"turnstileToken,omitempty"`
}

// Captcha returns whichever captcha token the client provided
func (r *CredentialsRequest) Captcha() string {
	if r.CaptchaToken != "" {
		return r.CaptchaToken
	}
	return r.TurnstileToken
}

// RegisterRequest represents the first-run registration payload
type RegisterRequest = CredentialsRequest

// LoginRequest represents the login payload
type LoginRequest = CredentialsRequest

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}

// CreateUserRequest represents a sub-account creation payload
type CreateUserRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Permissions []string `json:"permissions"`
}

// UpdatePermissionsRequest replaces the permission set of a user
type UpdatePermissionsRequest struct {
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}
