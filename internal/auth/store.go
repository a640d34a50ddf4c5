package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/database"
)

var (
	ErrUserNotFound   = apperr.NotFound("user not found")
	ErrRoleNotFound   = apperr.InvalidInput("role does not exist")
	ErrDuplicateEmail = apperr.Conflict("a user with this email already exists")
)

type UserStore interface {
	// Create resolves u.RoleCode to a role and fills ID, RoleName and
	// CreatedAt.
	Create(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	ListRoles(ctx context.Context) ([]Role, error)
	RoleByCode(ctx context.Context, code string) (*Role, error)
}

type pgUserStore struct {
	db *pgxpool.Pool
}

func NewPostgresUserStore(db *pgxpool.Pool) UserStore {
	return &pgUserStore{db: db}
}

const selectUser = `
	SELECT u.id, u.email, u.first_name, u.last_name, u.password_hash,
		COALESCE(r.code, ''), COALESCE(r.name, ''), u.is_staff, u.is_active, u.last_login, u.created_at
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.RoleCode, &u.RoleName, &u.IsStaff, &u.IsActive, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	role, err := s.RoleByCode(ctx, u.RoleCode)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO users (email, first_name, last_name, password_hash, role_id, is_staff, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW()) RETURNING id, created_at`,
		u.Email, u.FirstName, u.LastName, u.PasswordHash, role.ID, u.IsStaff,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return apperr.Internal(err, "failed to create user")
	}
	u.RoleName = role.Name
	u.IsActive = true
	return nil
}

func (s *pgUserStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "failed to delete user")
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *pgUserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.get(ctx, selectUser+` WHERE u.id = $1`, id)
}

func (s *pgUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.get(ctx, selectUser+` WHERE u.email = $1`, email)
}

func (s *pgUserStore) get(ctx context.Context, sql string, arg interface{}) (*User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal(err, "failed to load user")
	}
	return u, nil
}

func (s *pgUserStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.Query(ctx, selectUser+` ORDER BY u.created_at DESC, u.id DESC`)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list users")
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list users")
	}
	return users, nil
}

func (s *pgUserStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return apperr.Internal(err, "failed to update password")
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *pgUserStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id); err != nil {
		return apperr.Internal(err, "failed to update last login")
	}
	return nil
}

func (s *pgUserStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, code FROM roles ORDER BY id`)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list roles")
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Code); err != nil {
			return nil, apperr.Internal(err, "failed to scan role")
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list roles")
	}
	return roles, nil
}

func (s *pgUserStore) RoleByCode(ctx context.Context, code string) (*Role, error) {
	var r Role
	err := s.db.QueryRow(ctx, `SELECT id, name, code FROM roles WHERE code = $1`, code).Scan(&r.ID, &r.Name, &r.Code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, apperr.Internal(err, "failed to load role")
	}
	return &r, nil
}
