package exam

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/database"
	"github.com/mesikahq/clinic-records/internal/dates"
)

var (
	ErrTypeNotFound  = apperr.NotFound("exam type not found")
	ErrExamNotFound  = apperr.NotFound("exam not found")
	ErrDuplicateType = apperr.Conflict("an exam type with this name already exists")
	ErrTypeInUse     = apperr.Conflict("exam type is used by existing exams")
)

type Store interface {
	ListTypes(ctx context.Context) ([]*Type, error)
	CreateType(ctx context.Context, t *Type) error
	UpdateType(ctx context.Context, t *Type) error
	DeleteType(ctx context.Context, id int64) error

	Create(ctx context.Context, e *Exam) error
	Get(ctx context.Context, id int64) (*Exam, error)
	List(ctx context.Context, patientID *int64) ([]*Exam, error)
	Complete(ctx context.Context, id int64, c Completion) error
}

type pgStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

func (s *pgStore) ListTypes(ctx context.Context) ([]*Type, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, description FROM exam_types ORDER BY name`)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list exam types")
	}
	defer rows.Close()

	types := []*Type{}
	for rows.Next() {
		var t Type
		if err := rows.Scan(&t.ID, &t.Name, &t.Description); err != nil {
			return nil, apperr.Internal(err, "failed to scan exam type")
		}
		types = append(types, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list exam types")
	}
	return types, nil
}

func (s *pgStore) CreateType(ctx context.Context, t *Type) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO exam_types (name, description) VALUES ($1, $2) RETURNING id`,
		t.Name, t.Description,
	).Scan(&t.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateType
		}
		return apperr.Internal(err, "failed to create exam type")
	}
	return nil
}

func (s *pgStore) UpdateType(ctx context.Context, t *Type) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE exam_types SET name = $1, description = $2 WHERE id = $3`,
		t.Name, t.Description, t.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateType
		}
		return apperr.Internal(err, "failed to update exam type")
	}
	if tag.RowsAffected() == 0 {
		return ErrTypeNotFound
	}
	return nil
}

func (s *pgStore) DeleteType(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM exam_types WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrTypeInUse
		}
		return apperr.Internal(err, "failed to delete exam type")
	}
	if tag.RowsAffected() == 0 {
		return ErrTypeNotFound
	}
	return nil
}

func (s *pgStore) Create(ctx context.Context, e *Exam) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO exams (patient_id, doctor_id, exam_type_id, diagnosis_id, requested_on, state, observations)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.PatientID, e.DoctorID, e.TypeID, e.DiagnosisID, e.RequestedOn.Time, string(e.State), e.Observations,
	).Scan(&e.ID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.NotFound("patient, doctor, exam type or diagnosis not found")
		}
		return apperr.Internal(err, "failed to create exam")
	}
	return nil
}

const selectExam = `
	SELECT e.id, e.patient_id, e.doctor_id, e.exam_type_id, e.diagnosis_id,
		e.requested_on, e.performed_on, e.result_on, e.state,
		e.observations, e.interpretation, e.result_file,
		p.first_name || ' ' || p.last_name,
		COALESCE(d.first_name || ' ' || d.last_name, ''),
		t.name
	FROM exams e
	JOIN patients p ON p.id = e.patient_id
	LEFT JOIN doctors d ON d.id = e.doctor_id
	JOIN exam_types t ON t.id = e.exam_type_id`

func scanExam(row pgx.Row) (*Exam, error) {
	var (
		e                   Exam
		requested           time.Time
		performed, resulted *time.Time
		state               string
	)
	err := row.Scan(
		&e.ID, &e.PatientID, &e.DoctorID, &e.TypeID, &e.DiagnosisID,
		&requested, &performed, &resulted, &state,
		&e.Observations, &e.Interpretation, &e.ResultFile,
		&e.PatientName, &e.DoctorName, &e.TypeName,
	)
	if err != nil {
		return nil, err
	}
	e.RequestedOn = dates.Of(requested)
	e.PerformedOn = dates.Ptr(performed)
	e.ResultOn = dates.Ptr(resulted)
	e.State = State(state)
	return &e, nil
}

func (s *pgStore) Get(ctx context.Context, id int64) (*Exam, error) {
	e, err := scanExam(s.db.QueryRow(ctx, selectExam+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, apperr.Internal(err, "failed to load exam")
	}
	return e, nil
}

func (s *pgStore) List(ctx context.Context, patientID *int64) ([]*Exam, error) {
	sql := selectExam
	var args []interface{}
	if patientID != nil {
		sql += ` WHERE e.patient_id = $1`
		args = append(args, *patientID)
	}
	sql += ` ORDER BY e.requested_on DESC, e.id DESC`

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list exams")
	}
	defer rows.Close()

	exams := []*Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan exam")
		}
		exams = append(exams, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list exams")
	}
	return exams, nil
}

// Complete keeps performed_on when the completion does not carry one.
func (s *pgStore) Complete(ctx context.Context, id int64, c Completion) error {
	var performed *time.Time
	if c.PerformedOn != nil {
		performed = &c.PerformedOn.Time
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE exams
		 SET state = $1, result_on = $2, performed_on = COALESCE($3, performed_on, $2),
		     interpretation = $4, result_file = $5
		 WHERE id = $6`,
		string(StateCompleted), c.ResultOn.Time, performed, c.Interpretation, c.ResultFile, id,
	)
	if err != nil {
		return apperr.Internal(err, "failed to complete exam")
	}
	if tag.RowsAffected() == 0 {
		return ErrExamNotFound
	}
	return nil
}
