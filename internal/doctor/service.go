package doctor

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/database"
)

var (
	ErrDoctorNotFound      = apperr.NotFound("doctor not found")
	ErrSpecialtyNotFound   = apperr.NotFound("specialty not found")
	ErrDuplicateDNI        = apperr.Conflict("a doctor with this dni already exists")
	ErrDuplicateSpecialty  = apperr.Conflict("a specialty with this name already exists")
	ErrSpecialtyInUse      = apperr.Conflict("specialty is assigned to doctors")
	ErrDoctorHasRecords    = apperr.Conflict("doctor has related records")
	ErrDoctorAlreadyLinked = apperr.Conflict("doctor is already linked to a user")
)

type Service interface {
	ListSpecialties(ctx context.Context) ([]*Specialty, error)
	CreateSpecialty(ctx context.Context, s *Specialty) error
	UpdateSpecialty(ctx context.Context, s *Specialty) error
	DeleteSpecialty(ctx context.Context, id int64) error

	Create(ctx context.Context, d *Doctor) error
	Get(ctx context.Context, id int64) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, specialtyID *int64) ([]*Doctor, error)
	Search(ctx context.Context, query string) ([]*Doctor, error)
	LinkUser(ctx context.Context, doctorID, userID int64) error
}

type service struct {
	db    *pgxpool.Pool
	audit audit.Service
}

func NewService(db *pgxpool.Pool, audit audit.Service) Service {
	return &service{db: db, audit: audit}
}

func (s *service) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, description FROM specialties ORDER BY name`)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list specialties")
	}
	defer rows.Close()

	specialties := []*Specialty{}
	for rows.Next() {
		var sp Specialty
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Description); err != nil {
			return nil, apperr.Internal(err, "failed to scan specialty")
		}
		specialties = append(specialties, &sp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list specialties")
	}
	return specialties, nil
}

func (s *service) CreateSpecialty(ctx context.Context, sp *Specialty) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO specialties (name, description) VALUES ($1, $2) RETURNING id`,
		sp.Name, sp.Description,
	).Scan(&sp.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateSpecialty
		}
		return apperr.Internal(err, "failed to create specialty")
	}
	s.logModify(ctx, "CREATE", "specialty", sp.ID)
	return nil
}

func (s *service) UpdateSpecialty(ctx context.Context, sp *Specialty) error {
	if err := sp.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE specialties SET name = $1, description = $2 WHERE id = $3`,
		sp.Name, sp.Description, sp.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateSpecialty
		}
		return apperr.Internal(err, "failed to update specialty")
	}
	if tag.RowsAffected() == 0 {
		return ErrSpecialtyNotFound
	}
	s.logModify(ctx, "UPDATE", "specialty", sp.ID)
	return nil
}

func (s *service) DeleteSpecialty(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM specialties WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrSpecialtyInUse
		}
		return apperr.Internal(err, "failed to delete specialty")
	}
	if tag.RowsAffected() == 0 {
		return ErrSpecialtyNotFound
	}
	s.logDelete(ctx, "specialty", id)
	return nil
}

const selectDoctor = `
	SELECT d.id, d.first_name, d.last_name, d.dni, d.phone, d.specialty_id, COALESCE(sp.name, ''), d.user_id
	FROM doctors d
	LEFT JOIN specialties sp ON sp.id = d.specialty_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.DNI, &d.Phone, &d.SpecialtyID, &d.SpecialtyName, &d.UserID)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *service) Create(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO doctors (first_name, last_name, dni, phone, specialty_id, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		d.FirstName, d.LastName, d.DNI, d.Phone, d.SpecialtyID, d.UserID,
	).Scan(&d.ID)
	if err != nil {
		return s.mapWriteError(err, "failed to create doctor")
	}
	s.logModify(ctx, "CREATE", "doctor", d.ID)
	return nil
}

func (s *service) Get(ctx context.Context, id int64) (*Doctor, error) {
	d, err := scanDoctor(s.db.QueryRow(ctx, selectDoctor+` WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, apperr.Internal(err, "failed to load doctor")
	}
	return d, nil
}

func (s *service) Update(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE doctors SET first_name = $1, last_name = $2, dni = $3, phone = $4, specialty_id = $5
		 WHERE id = $6`,
		d.FirstName, d.LastName, d.DNI, d.Phone, d.SpecialtyID, d.ID,
	)
	if err != nil {
		return s.mapWriteError(err, "failed to update doctor")
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	s.logModify(ctx, "UPDATE", "doctor", d.ID)
	return nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrDoctorHasRecords
		}
		return apperr.Internal(err, "failed to delete doctor")
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	s.logDelete(ctx, "doctor", id)
	return nil
}

func (s *service) List(ctx context.Context, specialtyID *int64) ([]*Doctor, error) {
	if specialtyID != nil {
		return s.query(ctx, selectDoctor+` WHERE d.specialty_id = $1 ORDER BY d.last_name, d.first_name, d.id`, *specialtyID)
	}
	return s.query(ctx, selectDoctor+` ORDER BY d.last_name, d.first_name, d.id`)
}

// Search matches dni, names and specialty name.
func (s *service) Search(ctx context.Context, query string) ([]*Doctor, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Doctor{}, nil
	}
	return s.query(ctx,
		selectDoctor+` WHERE d.dni ILIKE $1 ESCAPE '\' OR d.first_name ILIKE $1 ESCAPE '\'
			OR d.last_name ILIKE $1 ESCAPE '\' OR sp.name ILIKE $1 ESCAPE '\'
		 ORDER BY d.last_name, d.first_name, d.id LIMIT 50`,
		database.ContainsPattern(query),
	)
}

func (s *service) LinkUser(ctx context.Context, doctorID, userID int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE doctors SET user_id = $1 WHERE id = $2 AND (user_id IS NULL OR user_id = $1)`,
		userID, doctorID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("user is already linked to another doctor")
		}
		return apperr.Internal(err, "failed to link doctor")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, doctorID); err != nil {
			return err
		}
		return ErrDoctorAlreadyLinked
	}
	return nil
}

func (s *service) query(ctx context.Context, sql string, args ...interface{}) ([]*Doctor, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list doctors")
	}
	defer rows.Close()

	doctors := []*Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan doctor")
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list doctors")
	}
	return doctors, nil
}

func (s *service) mapWriteError(err error, message string) error {
	switch {
	case database.IsUniqueViolation(err):
		if database.ConstraintName(err) == "doctors_user_id_key" {
			return ErrDoctorAlreadyLinked
		}
		return ErrDuplicateDNI
	case database.IsForeignKeyViolation(err):
		return ErrSpecialtyNotFound
	}
	return apperr.Internal(err, message)
}

func (s *service) logModify(ctx context.Context, action, resource string, id int64) {
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		Action:     action,
		Resource:   resource,
		ResourceID: strconv.FormatInt(id, 10),
	})
}

func (s *service) logDelete(ctx context.Context, resource string, id int64) {
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventDelete,
		Action:     "DELETE",
		Resource:   resource,
		ResourceID: strconv.FormatInt(id, 10),
	})
}
