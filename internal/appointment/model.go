// Package appointment owns the appointment lifecycle: creation, role-scoped
// listing, updates, cancellation and the calendar projection.
package appointment

import (
	"time"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
)

type State string

const (
	StateRequested State = "solicitada"
	StateConfirmed State = "confirmada"
	StateCancelled State = "cancelada"
	StateCompleted State = "completada"
)

var validStates = map[State]bool{
	StateRequested: true,
	StateConfirmed: true,
	StateCancelled: true,
	StateCompleted: true,
}

func (s State) Valid() bool {
	return validStates[s]
}

func ParseState(s string) (State, error) {
	state := State(s)
	if !state.Valid() {
		return "", apperr.InvalidInputf("invalid estado %q: must be one of solicitada, confirmada, cancelada, completada", s)
	}
	return state, nil
}

type Appointment struct {
	ID          int64            `json:"id"`
	PatientID   int64            `json:"paciente"`
	DoctorID    int64            `json:"medico"`
	ProposedAt  time.Time        `json:"fecha_hora_propuesta"`
	Reason      string           `json:"motivo"`
	State       State            `json:"estado"`
	RequestedAt time.Time        `json:"fecha_solicitud"`
	Patient     *patient.Patient `json:"paciente_detalle,omitempty"`
	Doctor      *doctor.Doctor   `json:"medico_detalle,omitempty"`
}

// CreateInput carries a new appointment. PatientID may be left nil by a
// patient booking for themselves.
type CreateInput struct {
	PatientID  *int64
	DoctorID   int64
	ProposedAt time.Time
	Reason     string
}

// Patch lists the fields an update may change; nil fields are left alone.
type Patch struct {
	PatientID  *int64
	DoctorID   *int64
	ProposedAt *time.Time
	Reason     *string
	State      *State
}

// Filter narrows an admin listing. Bounds are inclusive.
type Filter struct {
	DoctorID *int64
	From     *time.Time
	To       *time.Time
}

// Query is what the repository executes after role scoping.
type Query struct {
	PatientID *int64
	DoctorID  *int64
	From      *time.Time
	To        *time.Time
}
