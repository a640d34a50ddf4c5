package clinical

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
)

type pgStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

var (
	errPatientMissing = apperr.NotFound("patient not found")
	errDoctorMissing  = apperr.NotFound("doctor not found")
)

func (s *pgStore) CreateConsultation(ctx context.Context, c *Consultation) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Internal(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO clinical_histories (patient_id, started_on, observations)
		 VALUES ($1, CURRENT_DATE, $2)
		 ON CONFLICT (patient_id) DO NOTHING`,
		c.PatientID, AutoHistoryObservation,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errPatientMissing
		}
		return apperr.Internal(err, "failed to open clinical history")
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO consultations (patient_id, doctor_id, date, reason)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		c.PatientID, c.DoctorID, c.Date.Time, c.Reason,
	).Scan(&c.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			if database.ConstraintName(err) == "consultations_doctor_id_fkey" {
				return errDoctorMissing
			}
			return errPatientMissing
		}
		return apperr.Internal(err, "failed to create consultation")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal(err, "failed to commit consultation")
	}
	return nil
}

const selectConsultation = `
	SELECT c.id, c.patient_id, c.doctor_id, c.date, c.reason,
		p.first_name || ' ' || p.last_name,
		d.first_name || ' ' || d.last_name
	FROM consultations c
	JOIN patients p ON p.id = c.patient_id
	JOIN doctors d ON d.id = c.doctor_id`

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var date time.Time
	if err := row.Scan(&c.ID, &c.PatientID, &c.DoctorID, &date, &c.Reason, &c.PatientName, &c.DoctorName); err != nil {
		return nil, err
	}
	c.Date = dates.Of(date)
	return &c, nil
}

func (s *pgStore) GetConsultation(ctx context.Context, id int64) (*Consultation, error) {
	c, err := scanConsultation(s.db.QueryRow(ctx, selectConsultation+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, apperr.Internal(err, "failed to load consultation")
	}
	return c, nil
}

func (s *pgStore) ListConsultations(ctx context.Context, f ConsultationFilter) ([]*Consultation, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("c.patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("c.doctor_id = $%d", len(args)))
	}
	sql := selectConsultation
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY c.date DESC, c.id DESC"

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list consultations")
	}
	defer rows.Close()

	list := []*Consultation{}
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan consultation")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list consultations")
	}
	return list, nil
}

// DeleteConsultation cascades to its diagnoses and their treatments.
func (s *pgStore) DeleteConsultation(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM consultations WHERE id = $1`, id, ErrConsultationNotFound)
}

func (s *pgStore) CreateDiagnosis(ctx context.Context, d *Diagnosis) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO diagnoses (consultation_id, description, date)
		 VALUES ($1, $2, $3) RETURNING id`,
		d.ConsultationID, d.Description, d.Date.Time,
	).Scan(&d.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrConsultationNotFound
		}
		return apperr.Internal(err, "failed to create diagnosis")
	}
	return nil
}

func (s *pgStore) ListDiagnoses(ctx context.Context, f DiagnosisFilter) ([]*Diagnosis, error) {
	sql := `SELECT d.id, d.consultation_id, d.description, d.date
		FROM diagnoses d JOIN consultations c ON c.id = d.consultation_id`
	var (
		where []string
		args  []interface{}
	)
	if f.ConsultationID != nil {
		args = append(args, *f.ConsultationID)
		where = append(where, fmt.Sprintf("d.consultation_id = $%d", len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("c.patient_id = $%d", len(args)))
	}
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY d.date DESC, d.id DESC"

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list diagnoses")
	}
	defer rows.Close()

	list := []*Diagnosis{}
	for rows.Next() {
		var d Diagnosis
		var date time.Time
		if err := rows.Scan(&d.ID, &d.ConsultationID, &d.Description, &date); err != nil {
			return nil, apperr.Internal(err, "failed to scan diagnosis")
		}
		d.Date = dates.Of(date)
		list = append(list, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list diagnoses")
	}
	return list, nil
}

func (s *pgStore) DeleteDiagnosis(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM diagnoses WHERE id = $1`, id, ErrDiagnosisNotFound)
}

func (s *pgStore) CreateTreatment(ctx context.Context, t *Treatment) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO treatments (diagnosis_id, description, instructions, duration_days, start_date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		t.DiagnosisID, t.Description, t.Instructions, t.DurationDays, t.StartDate.Time,
	).Scan(&t.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrDiagnosisNotFound
		}
		return apperr.Internal(err, "failed to create treatment")
	}
	return nil
}

func (s *pgStore) ListTreatments(ctx context.Context, diagnosisID *int64) ([]*Treatment, error) {
	sql := `SELECT id, diagnosis_id, description, instructions, duration_days, start_date FROM treatments`
	var args []interface{}
	if diagnosisID != nil {
		sql += ` WHERE diagnosis_id = $1`
		args = append(args, *diagnosisID)
	}
	sql += ` ORDER BY start_date DESC, id DESC`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list treatments")
	}
	defer rows.Close()

	list := []*Treatment{}
	for rows.Next() {
		var t Treatment
		var start time.Time
		if err := rows.Scan(&t.ID, &t.DiagnosisID, &t.Description, &t.Instructions, &t.DurationDays, &start); err != nil {
			return nil, apperr.Internal(err, "failed to scan treatment")
		}
		t.StartDate = dates.Of(start)
		list = append(list, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list treatments")
	}
	return list, nil
}

func (s *pgStore) DeleteTreatment(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM treatments WHERE id = $1`, id, ErrTreatmentNotFound)
}

func (s *pgStore) GetBackground(ctx context.Context, patientID int64) (*MedicalBackground, error) {
	var b MedicalBackground
	var recorded, updated time.Time
	err := s.db.QueryRow(ctx,
		`SELECT patient_id, chronic_diseases, previous_surgeries, allergies, current_medications,
			family_history, smokes, packs_per_day, alcohol, exercise, diet, recorded_at, updated_at
		 FROM medical_backgrounds WHERE patient_id = $1`,
		patientID,
	).Scan(
		&b.PatientID, &b.ChronicDiseases, &b.PreviousSurgeries, &b.Allergies, &b.CurrentMedications,
		&b.FamilyHistory, &b.Smokes, &b.PacksPerDay, &b.Alcohol, &b.Exercise, &b.Diet, &recorded, &updated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBackgroundNotFound
		}
		return nil, apperr.Internal(err, "failed to load medical background")
	}
	b.RecordedAt, b.UpdatedAt = &recorded, &updated
	return &b, nil
}

// UpsertBackground keeps recorded_at from the first write.
func (s *pgStore) UpsertBackground(ctx context.Context, b *MedicalBackground) error {
	var recorded, updated time.Time
	err := s.db.QueryRow(ctx,
		`INSERT INTO medical_backgrounds (patient_id, chronic_diseases, previous_surgeries, allergies,
			current_medications, family_history, smokes, packs_per_day, alcohol, exercise, diet,
			recorded_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		 ON CONFLICT (patient_id) DO UPDATE SET
			chronic_diseases = EXCLUDED.chronic_diseases,
			previous_surgeries = EXCLUDED.previous_surgeries,
			allergies = EXCLUDED.allergies,
			current_medications = EXCLUDED.current_medications,
			family_history = EXCLUDED.family_history,
			smokes = EXCLUDED.smokes,
			packs_per_day = EXCLUDED.packs_per_day,
			alcohol = EXCLUDED.alcohol,
			exercise = EXCLUDED.exercise,
			diet = EXCLUDED.diet,
			updated_at = NOW()
		 RETURNING recorded_at, updated_at`,
		b.PatientID, b.ChronicDiseases, b.PreviousSurgeries, b.Allergies, b.CurrentMedications,
		b.FamilyHistory, b.Smokes, b.PacksPerDay, b.Alcohol, b.Exercise, b.Diet,
	).Scan(&recorded, &updated)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errPatientMissing
		}
		return apperr.Internal(err, "failed to save medical background")
	}
	b.RecordedAt, b.UpdatedAt = &recorded, &updated
	return nil
}

func (s *pgStore) deleteByID(ctx context.Context, sql string, id int64, notFound error) error {
	tag, err := s.db.Exec(ctx, sql, id)
	if err != nil {
		return apperr.Internal(err, "failed to delete record")
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}
