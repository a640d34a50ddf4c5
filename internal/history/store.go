package history

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store streams the history rows of one patient in query order.
type Store interface {
	Rows(ctx context.Context, patientID int64, fn func(*Row) error) error
}

type pgStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

// The consultation and doctor joins are inner joins: a patient without any
// consultation yields no rows even when a history record exists.
const historyQuery = `
	SELECT
		pa.id, pa.first_name, pa.last_name, pa.dni, pa.birth_date, pa.phone, pa.address,
		hc.id, hc.started_on, hc.observations,
		con.id, con.date, con.reason,
		me.id, me.first_name, me.last_name, me.dni, me.phone, COALESCE(sp.name, ''),
		diag.id, diag.description, diag.date,
		trat.id, trat.description, trat.instructions, trat.duration_days, trat.start_date
	FROM patients pa
	LEFT JOIN clinical_histories hc ON hc.patient_id = pa.id
	JOIN consultations con ON con.patient_id = pa.id
	JOIN doctors me ON me.id = con.doctor_id
	LEFT JOIN specialties sp ON sp.id = me.specialty_id
	LEFT JOIN diagnoses diag ON diag.consultation_id = con.id
	LEFT JOIN treatments trat ON trat.diagnosis_id = diag.id
	WHERE pa.id = $1
	ORDER BY con.date DESC, con.id DESC,
		diag.date DESC NULLS LAST, diag.id DESC,
		trat.start_date DESC NULLS LAST, trat.id DESC`

func (s *pgStore) Rows(ctx context.Context, patientID int64, fn func(*Row) error) error {
	rows, err := s.db.Query(ctx, historyQuery, patientID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r Row
		err := rows.Scan(
			&r.PatientID, &r.PatientFirstName, &r.PatientLastName, &r.PatientDNI,
			&r.PatientBirthDate, &r.PatientPhone, &r.PatientAddress,
			&r.HistoryID, &r.HistoryStartDate, &r.HistoryObservations,
			&r.ConsultationID, &r.ConsultationDate, &r.ConsultationReason,
			&r.DoctorID, &r.DoctorFirstName, &r.DoctorLastName, &r.DoctorDNI, &r.DoctorPhone, &r.DoctorSpecialty,
			&r.DiagnosisID, &r.DiagnosisDescription, &r.DiagnosisDate,
			&r.TreatmentID, &r.TreatmentDescription, &r.TreatmentInstructions, &r.TreatmentDurationDays, &r.TreatmentStartDate,
		)
		if err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	return rows.Err()
}
