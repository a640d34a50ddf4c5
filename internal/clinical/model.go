// Package clinical records consultations, diagnoses, treatments and the
// medical background of patients.
package clinical

import (
	"strings"
	"time"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/dates"
)

// AutoHistoryObservation is written on a clinical history created by a
// patient's first consultation.
const AutoHistoryObservation = "Historia clínica creada automáticamente."

type Consultation struct {
	ID          int64      `json:"id"`
	PatientID   int64      `json:"paciente"`
	DoctorID    int64      `json:"medico"`
	Date        dates.Date `json:"fecha"`
	Reason      string     `json:"motivo"`
	PatientName string     `json:"paciente_nombre,omitempty"`
	DoctorName  string     `json:"medico_nombre,omitempty"`
}

func (c *Consultation) Validate() error {
	c.Reason = strings.TrimSpace(c.Reason)
	switch {
	case c.PatientID <= 0:
		return apperr.InvalidInput("paciente is required")
	case c.DoctorID <= 0:
		return apperr.InvalidInput("medico is required")
	case c.Date.IsZero():
		return apperr.InvalidInput("fecha is required")
	case c.Reason == "":
		return apperr.InvalidInput("motivo is required")
	}
	return nil
}

type ConsultationFilter struct {
	PatientID *int64
	DoctorID  *int64
}

type Diagnosis struct {
	ID             int64      `json:"id"`
	ConsultationID int64      `json:"consulta"`
	Description    string     `json:"descripcion"`
	Date           dates.Date `json:"fecha"`
}

func (d *Diagnosis) Validate() error {
	d.Description = strings.TrimSpace(d.Description)
	if d.ConsultationID <= 0 {
		return apperr.InvalidInput("consulta is required")
	}
	if d.Description == "" {
		return apperr.InvalidInput("descripcion is required")
	}
	return nil
}

type DiagnosisFilter struct {
	ConsultationID *int64
	PatientID      *int64
}

type Treatment struct {
	ID           int64      `json:"id"`
	DiagnosisID  int64      `json:"diagnostico"`
	Description  string     `json:"descripcion"`
	Instructions string     `json:"indicaciones"`
	DurationDays *int32     `json:"duracion_dias"`
	StartDate    dates.Date `json:"fecha_inicio"`
}

func (t *Treatment) Validate() error {
	t.Description = strings.TrimSpace(t.Description)
	t.Instructions = strings.TrimSpace(t.Instructions)
	switch {
	case t.DiagnosisID <= 0:
		return apperr.InvalidInput("diagnostico is required")
	case t.Description == "":
		return apperr.InvalidInput("descripcion is required")
	case t.DurationDays != nil && *t.DurationDays <= 0:
		return apperr.InvalidInput("duracion_dias must be greater than zero")
	case t.StartDate.IsZero():
		return apperr.InvalidInput("fecha_inicio is required")
	}
	return nil
}

// MedicalBackground is the per-patient record of prior conditions and
// habits. The free-text fields are stored encrypted.
type MedicalBackground struct {
	PatientID          int64      `json:"paciente"`
	ChronicDiseases    string     `json:"enfermedades_cronicas"`
	PreviousSurgeries  string     `json:"cirugias_previas"`
	Allergies          string     `json:"alergias"`
	CurrentMedications string     `json:"medicamentos_actuales"`
	FamilyHistory      string     `json:"antecedentes_familiares"`
	Smokes             bool       `json:"fuma"`
	PacksPerDay        *float64   `json:"cajetillas_dia"`
	Alcohol            string     `json:"consumo_alcohol"`
	Exercise           string     `json:"actividad_fisica"`
	Diet               string     `json:"dieta"`
	RecordedAt         *time.Time `json:"fecha_registro"`
	UpdatedAt          *time.Time `json:"fecha_actualizacion"`
}

func (b *MedicalBackground) Validate() error {
	if b.PatientID <= 0 {
		return apperr.InvalidInput("paciente is required")
	}
	if b.PacksPerDay != nil && *b.PacksPerDay < 0 {
		return apperr.InvalidInput("cajetillas_dia cannot be negative")
	}
	if !b.Smokes {
		b.PacksPerDay = nil
	}
	return nil
}

// secretFields lists the free-text fields sealed at rest.
func (b *MedicalBackground) secretFields() []*string {
	return []*string{
		&b.ChronicDiseases,
		&b.PreviousSurgeries,
		&b.Allergies,
		&b.CurrentMedications,
		&b.FamilyHistory,
	}
}
