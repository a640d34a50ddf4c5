// Package exam manages exam types and the exams ordered for patients.
package exam

import (
	"strings"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/dates"
)

type State string

const (
	StateRequested State = "solicitado"
	StateCompleted State = "completado"
)

type Type struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Description string `json:"descripcion"`
}

func (t *Type) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	t.Description = strings.TrimSpace(t.Description)
	if t.Name == "" {
		return apperr.InvalidInput("nombre is required")
	}
	return nil
}

type Exam struct {
	ID             int64       `json:"id"`
	PatientID      int64       `json:"paciente_id"`
	DoctorID       *int64      `json:"medico_id"`
	TypeID         int64       `json:"tipo_examen_id"`
	DiagnosisID    *int64      `json:"diagnostico_relacionado_id"`
	RequestedOn    dates.Date  `json:"fecha_solicitud"`
	PerformedOn    *dates.Date `json:"fecha_realizacion"`
	ResultOn       *dates.Date `json:"fecha_resultado"`
	State          State       `json:"estado"`
	Observations   string      `json:"observaciones"`
	Interpretation string      `json:"interpretacion_medica"`
	// ResultFile is an opaque reference to the result document.
	ResultFile string `json:"archivo_resultado"`

	PatientName string `json:"paciente_nombre,omitempty"`
	DoctorName  string `json:"medico_nombre,omitempty"`
	TypeName    string `json:"tipo_examen_nombre,omitempty"`
}

func (e *Exam) Validate() error {
	e.Observations = strings.TrimSpace(e.Observations)
	if e.PatientID <= 0 {
		return apperr.InvalidInput("paciente_id is required")
	}
	if e.TypeID <= 0 {
		return apperr.InvalidInput("tipo_examen_id is required")
	}
	return nil
}

// Completion carries the result of an exam.
type Completion struct {
	ResultOn       dates.Date  `json:"fecha_resultado"`
	PerformedOn    *dates.Date `json:"fecha_realizacion"`
	Interpretation string      `json:"interpretacion_medica"`
	ResultFile     string      `json:"archivo_resultado"`
}
