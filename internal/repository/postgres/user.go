package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/pkg/database"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

const (
	queryInsertUser = `
		INSERT INTO users (first_name, last_name, email, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	queryAssignRole = `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT DO NOTHING`

	queryUserByID = `
		SELECT id, first_name, last_name, email, is_active, created_at, updated_at
		FROM users
		WHERE id = $1`

	queryUserByEmail = `
		SELECT id, first_name, last_name, email, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE email = $1`

	queryCountUsers = `SELECT count(*) FROM users`

	queryListUsers = `
		SELECT id, first_name, last_name, email, is_active, created_at, updated_at
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2`

	queryUserRoles = `
		SELECT r.id, r.name, COALESCE(p.id::text, ''), COALESCE(p.name, '')
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY r.id, p.name`
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user and its role assignment in one transaction.
func (r *UserRepository) Create(ctx context.Context, u *domain.User, role string) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateUser", queryInsertUser)
	defer func() { end(err) }()

	err = database.InTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, queryInsertUser,
			u.FirstName,
			u.LastName,
			u.Email,
			u.PasswordHash,
			u.IsActive,
		).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return err
		}

		if role != "" {
			if _, err := tx.Exec(ctx, queryAssignRole, u.ID, role); err != nil {
				return fmt.Errorf("assign role %q: %w", role, err)
			}
		}

		roles, err := loadRoles(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		u.Roles = roles
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by id without the password hash.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "GetUserByID", queryUserByID)
	defer func() { end(ignoreNotFound(err)) }()

	u = &domain.User{}
	err = r.db.QueryRow(ctx, queryUserByID, id).Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if u.Roles, err = loadRoles(ctx, r.db, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail retrieves a user by email, including the password hash.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", queryUserByEmail)
	defer func() { end(ignoreNotFound(err)) }()

	u = &domain.User{}
	err = r.db.QueryRow(ctx, queryUserByEmail, email).Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if u.Roles, err = loadRoles(ctx, r.db, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns a page of users ordered by id, without password hashes, and
// the total number of users.
func (r *UserRepository) List(ctx context.Context, limit, offset int) (users []domain.User, total int64, err error) {
	ctx, end := database.TraceQuery(ctx, "ListUsers", queryListUsers)
	defer func() { end(err) }()

	if err := r.db.QueryRow(ctx, queryCountUsers).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx, queryListUsers, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users = []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	// Roles are loaded after the page rows are released; the pool may hand
	// out a single connection.
	for i := range users {
		if users[i].Roles, err = loadRoles(ctx, r.db, users[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// loadRoles returns the user's roles with their permissions. Rows arrive
// ordered by role, one per permission; a role without permissions yields a
// single row with empty permission columns.
func loadRoles(ctx context.Context, q querier, userID int64) ([]domain.Role, error) {
	rows, err := q.Query(ctx, queryUserRoles, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := []domain.Role{}
	for rows.Next() {
		var (
			roleID           int64
			roleName         string
			permID, permName string
		)
		if err := rows.Scan(&roleID, &roleName, &permID, &permName); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}

		if n := len(roles); n == 0 || roles[n-1].ID != roleID {
			roles = append(roles, domain.Role{ID: roleID, Name: roleName, Permissions: []domain.Permission{}})
		}
		if permName == "" {
			continue
		}
		pid, err := uuid.Parse(permID)
		if err != nil {
			return nil, fmt.Errorf("parse permission id %q: %w", permID, err)
		}
		last := &roles[len(roles)-1]
		last.Permissions = append(last.Permissions, domain.Permission{ID: pid, Name: permName})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}
	return roles, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}

// ignoreNotFound keeps expected misses out of span error status.
func ignoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}
