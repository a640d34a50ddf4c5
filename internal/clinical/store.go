package clinical

import (
	"context"

	"github.com/mesikahq/clinic-records/internal/apperr"
)

var (
	ErrConsultationNotFound = apperr.NotFound("consultation not found")
	ErrDiagnosisNotFound    = apperr.NotFound("diagnosis not found")
	ErrTreatmentNotFound    = apperr.NotFound("treatment not found")
	ErrBackgroundNotFound   = apperr.NotFound("medical background not found")
)

// Store persists clinical records. Background text fields reach the store
// already sealed.
type Store interface {
	// CreateConsultation opens the patient's clinical history first when it
	// does not exist yet, in the same transaction.
	CreateConsultation(ctx context.Context, c *Consultation) error
	GetConsultation(ctx context.Context, id int64) (*Consultation, error)
	ListConsultations(ctx context.Context, f ConsultationFilter) ([]*Consultation, error)
	DeleteConsultation(ctx context.Context, id int64) error

	CreateDiagnosis(ctx context.Context, d *Diagnosis) error
	ListDiagnoses(ctx context.Context, f DiagnosisFilter) ([]*Diagnosis, error)
	DeleteDiagnosis(ctx context.Context, id int64) error

	CreateTreatment(ctx context.Context, t *Treatment) error
	ListTreatments(ctx context.Context, diagnosisID *int64) ([]*Treatment, error)
	DeleteTreatment(ctx context.Context, id int64) error

	GetBackground(ctx context.Context, patientID int64) (*MedicalBackground, error)
	UpsertBackground(ctx context.Context, b *MedicalBackground) error
}
