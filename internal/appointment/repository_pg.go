package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/database"
	"github.com/mesikahq/clinic-records/internal/dates"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
)

type pgRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &pgRepository{db: db}
}

const selectAppointment = `
	SELECT a.id, a.patient_id, a.doctor_id, a.proposed_at, a.reason, a.state, a.requested_at,
		p.id, p.first_name, p.last_name, p.dni, p.birth_date, p.phone, p.address, p.user_id,
		d.id, d.first_name, d.last_name, d.dni, d.phone, d.specialty_id, COALESCE(sp.name, ''), d.user_id
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	LEFT JOIN specialties sp ON sp.id = d.specialty_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a     Appointment
		p     patient.Patient
		d     doctor.Doctor
		state string
		born  time.Time
	)
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.ProposedAt, &a.Reason, &state, &a.RequestedAt,
		&p.ID, &p.FirstName, &p.LastName, &p.DNI, &born, &p.Phone, &p.Address, &p.UserID,
		&d.ID, &d.FirstName, &d.LastName, &d.DNI, &d.Phone, &d.SpecialtyID, &d.SpecialtyName, &d.UserID,
	)
	if err != nil {
		return nil, err
	}
	a.State = State(state)
	p.BirthDate = dates.Of(born)
	a.Patient = &p
	a.Doctor = &d
	return &a, nil
}

func (r *pgRepository) Create(ctx context.Context, a *Appointment) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO appointments (patient_id, doctor_id, proposed_at, reason, state, requested_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.PatientID, a.DoctorID, a.ProposedAt, a.Reason, string(a.State), a.RequestedAt,
	).Scan(&a.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient or doctor not found")
		}
		return apperr.Internal(err, "failed to create appointment")
	}
	return nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, selectAppointment+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Internal(err, "failed to load appointment")
	}
	return a, nil
}

func (r *pgRepository) List(ctx context.Context, q Query) ([]*Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.PatientID != nil {
		add("a.patient_id = $%d", *q.PatientID)
	}
	if q.DoctorID != nil {
		add("a.doctor_id = $%d", *q.DoctorID)
	}
	if q.From != nil {
		add("a.proposed_at >= $%d", *q.From)
	}
	if q.To != nil {
		add("a.proposed_at <= $%d", *q.To)
	}

	sql := selectAppointment
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY a.proposed_at, a.id"

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list appointments")
	}
	defer rows.Close()

	appointments := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan appointment")
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list appointments")
	}
	return appointments, nil
}

// Update writes every mutable column in one statement; requested_at is
// never touched.
func (r *pgRepository) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE appointments
		 SET patient_id = $1, doctor_id = $2, proposed_at = $3, reason = $4, state = $5
		 WHERE id = $6`,
		a.PatientID, a.DoctorID, a.ProposedAt, a.Reason, string(a.State), a.ID,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient or doctor not found")
		}
		return apperr.Internal(err, "failed to update appointment")
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *pgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "failed to delete appointment")
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *pgRepository) HasOverlap(ctx context.Context, doctorID int64, from, to time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND state <> $2
			  AND proposed_at > $3 AND proposed_at < $4
			  AND id <> $5
		)`,
		doctorID, string(StateCancelled), from, to, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, apperr.Internal(err, "failed to check doctor availability")
	}
	return exists, nil
}
