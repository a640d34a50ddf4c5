package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
)

var ErrUserNotFound = apperr.NotFound("user not found")

type Service interface {
	Resolve(ctx context.Context, userID int64) (Requester, error)
}

type service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) Service {
	return &service{db: db}
}

// Resolve loads the active user's role code and linked profiles. Users
// without a role resolve with an empty Role and pass no role check.
func (s *service) Resolve(ctx context.Context, userID int64) (Requester, error) {
	req := Requester{UserID: userID}
	var role string
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(r.code, ''), p.id, d.id
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		LEFT JOIN patients p ON p.user_id = u.id
		LEFT JOIN doctors d ON d.user_id = u.id
		WHERE u.id = $1 AND u.is_active`,
		userID,
	).Scan(&role, &req.PatientID, &req.DoctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requester{}, ErrUserNotFound
		}
		return Requester{}, apperr.Internal(err, "failed to resolve user")
	}
	req.Role = Role(role)
	return req, nil
}
