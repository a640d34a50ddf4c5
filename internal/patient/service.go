package patient

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/database"
	"github.com/mesikahq/clinic-records/internal/dates"
)

var (
	ErrPatientNotFound = apperr.NotFound("patient not found")
	ErrDuplicateDNI    = apperr.Conflict("a patient with this dni already exists")
	ErrAlreadyLinked   = apperr.Conflict("patient is already linked to a user")
	ErrHasRecords      = apperr.Conflict("patient has related records")
)

type Service interface {
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id int64) (*Patient, error)
	GetByDNI(ctx context.Context, dni string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*Patient, error)
	Search(ctx context.Context, query string) ([]*Patient, error)
	LinkUser(ctx context.Context, patientID, userID int64) error
}

type service struct {
	db    *pgxpool.Pool
	audit audit.Service
}

func NewService(db *pgxpool.Pool, audit audit.Service) Service {
	return &service{db: db, audit: audit}
}

const selectPatient = `SELECT id, first_name, last_name, dni, birth_date, phone, address, user_id FROM patients`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var born time.Time
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DNI, &born, &p.Phone, &p.Address, &p.UserID); err != nil {
		return nil, err
	}
	p.BirthDate = dates.Of(born)
	return &p, nil
}

func (s *service) Create(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO patients (first_name, last_name, dni, birth_date, phone, address, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.FirstName, p.LastName, p.DNI, p.BirthDate.Time, p.Phone, p.Address, p.UserID,
	).Scan(&p.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if database.ConstraintName(err) == "patients_user_id_key" {
				return ErrAlreadyLinked
			}
			return ErrDuplicateDNI
		}
		return apperr.Internal(err, "failed to create patient")
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		Action:     "CREATE",
		Resource:   "patient",
		ResourceID: strconv.FormatInt(p.ID, 10),
	})
	return nil
}

func (s *service) Get(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(s.db.QueryRow(ctx, selectPatient+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Internal(err, "failed to load patient")
	}
	return p, nil
}

func (s *service) GetByDNI(ctx context.Context, dni string) (*Patient, error) {
	p, err := scanPatient(s.db.QueryRow(ctx, selectPatient+` WHERE dni = $1`, strings.TrimSpace(dni)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Internal(err, "failed to load patient")
	}
	return p, nil
}

func (s *service) Update(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE patients SET first_name = $1, last_name = $2, dni = $3, birth_date = $4, phone = $5, address = $6
		 WHERE id = $7`,
		p.FirstName, p.LastName, p.DNI, p.BirthDate.Time, p.Phone, p.Address, p.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateDNI
		}
		return apperr.Internal(err, "failed to update patient")
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		Action:     "UPDATE",
		Resource:   "patient",
		ResourceID: strconv.FormatInt(p.ID, 10),
	})
	return nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrHasRecords
		}
		return apperr.Internal(err, "failed to delete patient")
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventDelete,
		Action:     "DELETE",
		Resource:   "patient",
		ResourceID: strconv.FormatInt(id, 10),
	})
	return nil
}

func (s *service) List(ctx context.Context) ([]*Patient, error) {
	return s.query(ctx, selectPatient+` ORDER BY last_name, first_name, id`)
}

// Search matches the query against dni, first name and last name.
func (s *service) Search(ctx context.Context, query string) ([]*Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Patient{}, nil
	}
	return s.query(ctx,
		selectPatient+` WHERE dni ILIKE $1 ESCAPE '\' OR first_name ILIKE $1 ESCAPE '\' OR last_name ILIKE $1 ESCAPE '\'
		 ORDER BY last_name, first_name, id LIMIT 50`,
		database.ContainsPattern(query),
	)
}

func (s *service) LinkUser(ctx context.Context, patientID, userID int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE patients SET user_id = $1 WHERE id = $2 AND (user_id IS NULL OR user_id = $1)`,
		userID, patientID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("user is already linked to another patient")
		}
		return apperr.Internal(err, "failed to link patient")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, patientID); err != nil {
			return err
		}
		return ErrAlreadyLinked
	}
	return nil
}

func (s *service) query(ctx context.Context, sql string, args ...interface{}) ([]*Patient, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list patients")
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan patient")
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list patients")
	}
	return patients, nil
}
