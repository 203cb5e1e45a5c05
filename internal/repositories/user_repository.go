package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

// mysqlDuplicateEntry is the MySQL error number for unique key violations
const mysqlDuplicateEntry = 1062

const userColumns = `username, password_hash, salt, created_at, role, permissions, schema_version`

// userRepository implements the user repositories consumed by services
type userRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *userRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

// Count returns the number of registered users
func (r *userRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		r.logger.Error("failed to count users", zap.Error(err))
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CountAdmins returns the number of users holding the admin role.
// Legacy rows without a role count as admins.
func (r *userRepository) CountAdmins(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE role = ? OR role IS NULL OR schema_version = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, models.RoleAdmin, models.UserSchemaLegacy).Scan(&count); err != nil {
		r.logger.Error("failed to count admins", zap.Error(err))
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Salt,
		user.CreatedAt,
		string(user.Role),
		string(perms),
		user.SchemaVersion,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return fmt.Errorf("%w: Username exists", models.ErrConflict)
		}
		r.logger.Error("failed to create user", zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByUsername retrieves a user by username, migrated to the current schema
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ? LIMIT 1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: User not found", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get user by username", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return user, nil
}

// GetFirstAdmin retrieves the oldest admin, including legacy rows without a role
func (r *userRepository) GetFirstAdmin(ctx context.Context) (*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = ? OR role IS NULL OR schema_version = ?
		ORDER BY created_at ASC
		LIMIT 1
	`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, models.RoleAdmin, models.UserSchemaLegacy))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: admin not found", models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get first admin", zap.Error(err))
		return nil, fmt.Errorf("failed to get first admin: %w", err)
	}

	return user, nil
}

// GetAll retrieves every user ordered by creation time
func (r *userRepository) GetAll(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			r.logger.Error("failed to scan user", zap.Error(err))
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating users", zap.Error(err))
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UpdatePermissions replaces the permission set of a user
func (r *userRepository) UpdatePermissions(ctx context.Context, username string, permissions []models.Permission) error {
	perms, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `UPDATE users SET permissions = ? WHERE username = ?`, string(perms), username)
	if err != nil {
		r.logger.Error("failed to update permissions", zap.Error(err), zap.String("username", username))
		return fmt.Errorf("failed to update permissions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// MySQL reports 0 for unchanged rows too, so confirm the user exists
		if _, err := r.GetByUsername(ctx, username); err != nil {
			return err
		}
	}

	return nil
}

// Delete deletes a user by username
func (r *userRepository) Delete(ctx context.Context, username string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		r.logger.Error("failed to delete user", zap.Error(err), zap.String("username", username))
		return fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: User not found", models.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads a users row and migrates it to the current schema
func scanUser(row rowScanner) (*models.User, error) {
	var (
		user  models.User
		role  sql.NullString
		perms sql.NullString
	)

	if err := row.Scan(
		&user.Username,
		&user.PasswordHash,
		&user.Salt,
		&user.CreatedAt,
		&role,
		&perms,
		&user.SchemaVersion,
	); err != nil {
		return nil, err
	}

	user.Role = models.Role(role.String)
	if perms.Valid && perms.String != "" {
		var raw []string
		if err := json.Unmarshal([]byte(perms.String), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode permissions for %s: %w", user.Username, err)
		}
		for _, p := range raw {
			user.Permissions = append(user.Permissions, models.Permission(p))
		}
	}

	user.Migrate()
	return &user, nil
}
