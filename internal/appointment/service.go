package appointment

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
)

var (
	ErrNotPatient      = apperr.Forbidden("user has no patient profile")
	ErrNotDoctor       = apperr.Forbidden("user has no doctor profile")
	ErrAdminOnly       = apperr.Forbidden("only administrators can perform this action")
	ErrNotAllowed      = apperr.Forbidden("you do not have permission to modify this appointment")
	ErrDeleteForbidden = apperr.Forbidden("only an administrator or the assigned doctor can delete this appointment")
	ErrPastDate        = apperr.InvalidInput("fecha_hora_propuesta must be in the future")
	ErrDoubleBooked    = apperr.Conflict("the doctor already has an appointment at that time")
)

type PatientFinder interface {
	Get(ctx context.Context, id int64) (*patient.Patient, error)
}

type DoctorFinder interface {
	Get(ctx context.Context, id int64) (*doctor.Doctor, error)
}

type Config struct {
	// SlotLength is the calendar duration of an appointment and the window
	// used by the double-booking check.
	SlotLength           time.Duration
	StrictTransitions    bool
	PreventDoubleBooking bool
	// StrictOwnership stops doctors booking under another doctor's id and
	// stops an owning patient from moving an appointment to another patient.
	StrictOwnership bool
}

type Service interface {
	Create(ctx context.Context, req directory.Requester, in CreateInput) (*Appointment, error)
	Get(ctx context.Context, req directory.Requester, id int64) (*Appointment, error)
	List(ctx context.Context, req directory.Requester, f Filter) ([]*Appointment, error)
	ListForDoctor(ctx context.Context, req directory.Requester, f Filter) ([]*Appointment, error)
	ListForPatient(ctx context.Context, req directory.Requester) ([]*Appointment, error)
	ListAll(ctx context.Context, req directory.Requester, f Filter) ([]*Appointment, error)
	Update(ctx context.Context, req directory.Requester, id int64, p Patch) (*Appointment, error)
	Delete(ctx context.Context, req directory.Requester, id int64) error
}

type service struct {
	repo     Repository
	patients PatientFinder
	doctors  DoctorFinder
	audit    audit.Service
	cfg      Config
	now      func() time.Time
}

func NewService(repo Repository, patients PatientFinder, doctors DoctorFinder, audit audit.Service, cfg Config) Service {
	if cfg.SlotLength <= 0 {
		cfg.SlotLength = 30 * time.Minute
	}
	return &service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		audit:    audit,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *service) Create(ctx context.Context, req directory.Requester, in CreateInput) (*Appointment, error) {
	patientID, err := s.resolveBookingPatient(req, in.PatientID)
	if err != nil {
		return nil, err
	}
	if in.DoctorID <= 0 {
		return nil, apperr.InvalidInput("medico is required")
	}
	if in.ProposedAt.IsZero() {
		return nil, apperr.InvalidInput("fecha_hora_propuesta is required")
	}
	if !in.ProposedAt.After(s.now()) {
		return nil, ErrPastDate
	}
	if s.cfg.StrictOwnership && req.Role == directory.RoleDoctor && !req.IsDoctor(in.DoctorID) {
		return nil, apperr.Forbidden("doctors can only book appointments for themselves")
	}

	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	d, err := s.doctors.Get(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	if err := s.checkAvailability(ctx, in.DoctorID, in.ProposedAt, 0); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   patientID,
		DoctorID:    in.DoctorID,
		ProposedAt:  in.ProposedAt,
		Reason:      strings.TrimSpace(in.Reason),
		State:       StateRequested,
		RequestedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	a.Patient = p
	a.Doctor = d

	s.logEvent(ctx, audit.EventModify, "CREATE", a.ID, nil)
	return a, nil
}

// resolveBookingPatient decides whose appointment is being created. Patients
// book only for their own profile; admins and doctors must name the patient.
func (s *service) resolveBookingPatient(req directory.Requester, requested *int64) (int64, error) {
	switch req.Role {
	case directory.RolePatient:
		if req.PatientID == nil {
			return 0, ErrNotPatient
		}
		if requested != nil && *requested != *req.PatientID {
			return 0, apperr.Forbidden("patients can only book appointments for themselves")
		}
		return *req.PatientID, nil
	case directory.RoleAdmin, directory.RoleDoctor:
		if requested == nil || *requested <= 0 {
			return 0, apperr.InvalidInput("paciente is required")
		}
		if req.Role == directory.RoleDoctor && req.DoctorID == nil {
			return 0, ErrNotDoctor
		}
		return *requested, nil
	}
	return 0, apperr.Forbidden("your role cannot book appointments")
}

func (s *service) Get(ctx context.Context, req directory.Requester, id int64) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(req, a) {
		return nil, apperr.Forbidden("you do not have permission to view this appointment")
	}
	return a, nil
}

// List applies the caller's role: admins see everything and may filter,
// doctors see their own schedule within the range, patients see their own
// appointments and every filter is ignored.
func (s *service) List(ctx context.Context, req directory.Requester, f Filter) ([]*Appointment, error) {
	switch req.Role {
	case directory.RoleAdmin:
		return s.ListAll(ctx, req, f)
	case directory.RoleDoctor:
		return s.ListForDoctor(ctx, req, f)
	case directory.RolePatient:
		return s.ListForPatient(ctx, req)
	}
	return nil, apperr.Forbidden("your role cannot list appointments")
}

func (s *service) ListForDoctor(ctx context.Context, req directory.Requester, f Filter) ([]*Appointment, error) {
	if req.IsAdmin() {
		return s.ListAll(ctx, req, f)
	}
	if req.DoctorID == nil {
		return nil, ErrNotDoctor
	}
	if err := validateRange(f); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Query{DoctorID: req.DoctorID, From: f.From, To: f.To})
}

func (s *service) ListForPatient(ctx context.Context, req directory.Requester) ([]*Appointment, error) {
	if req.PatientID == nil {
		return nil, ErrNotPatient
	}
	return s.repo.List(ctx, Query{PatientID: req.PatientID})
}

func (s *service) ListAll(ctx context.Context, req directory.Requester, f Filter) ([]*Appointment, error) {
	if !req.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if err := validateRange(f); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Query{DoctorID: f.DoctorID, From: f.From, To: f.To})
}

func (s *service) Update(ctx context.Context, req directory.Requester, id int64, p Patch) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(req, a) {
		return nil, ErrNotAllowed
	}
	asPatientOnly := !req.IsAdmin() && !req.IsDoctor(a.DoctorID)

	changed := map[string]interface{}{}
	rescheduled := false

	if p.PatientID != nil && *p.PatientID != a.PatientID {
		if asPatientOnly && s.cfg.StrictOwnership {
			return nil, apperr.Forbidden("patients cannot move an appointment to another patient")
		}
		pt, err := s.patients.Get(ctx, *p.PatientID)
		if err != nil {
			return nil, err
		}
		a.PatientID, a.Patient = pt.ID, pt
		changed["paciente"] = pt.ID
	}
	if p.DoctorID != nil && *p.DoctorID != a.DoctorID {
		d, err := s.doctors.Get(ctx, *p.DoctorID)
		if err != nil {
			return nil, err
		}
		a.DoctorID, a.Doctor = d.ID, d
		changed["medico"] = d.ID
		rescheduled = true
	}
	if p.ProposedAt != nil && !p.ProposedAt.Equal(a.ProposedAt) {
		if p.ProposedAt.IsZero() {
			return nil, apperr.InvalidInput("fecha_hora_propuesta cannot be empty")
		}
		a.ProposedAt = *p.ProposedAt
		changed["fecha_hora_propuesta"] = a.ProposedAt
		rescheduled = true
	}
	if p.Reason != nil {
		a.Reason = strings.TrimSpace(*p.Reason)
		changed["motivo"] = a.Reason
	}
	if p.State != nil {
		if !p.State.Valid() {
			return nil, apperr.InvalidInputf("invalid estado %q", string(*p.State))
		}
		if s.cfg.StrictTransitions && !CanTransition(a.State, *p.State) {
			return nil, apperr.InvalidInputf("cannot change estado from %s to %s", a.State, *p.State)
		}
		a.State = *p.State
		changed["estado"] = a.State
	}

	if rescheduled && a.State != StateCancelled {
		if err := s.checkAvailability(ctx, a.DoctorID, a.ProposedAt, a.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventModify, "UPDATE", a.ID, changed)
	return a, nil
}

func (s *service) Delete(ctx context.Context, req directory.Requester, id int64) error {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !req.IsAdmin() && !req.IsDoctor(a.DoctorID) {
		return ErrDeleteForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventDelete, "DELETE", id, nil)
	return nil
}

func (s *service) checkAvailability(ctx context.Context, doctorID int64, at time.Time, excludeID int64) error {
	if !s.cfg.PreventDoubleBooking {
		return nil
	}
	busy, err := s.repo.HasOverlap(ctx, doctorID, at.Add(-s.cfg.SlotLength), at.Add(s.cfg.SlotLength), excludeID)
	if err != nil {
		return err
	}
	if busy {
		return ErrDoubleBooked
	}
	return nil
}

func (s *service) logEvent(ctx context.Context, eventType audit.EventType, action string, id int64, details map[string]interface{}) {
	event := &audit.Event{
		EventType:  eventType,
		Action:     action,
		Resource:   "appointment",
		ResourceID: strconv.FormatInt(id, 10),
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			event.Details = raw
		}
	}
	s.audit.LogEvent(ctx, event)
}

// canView is shared by reads and updates: admins, the assigned doctor and the
// owning patient.
func canView(req directory.Requester, a *Appointment) bool {
	return req.IsAdmin() || req.IsDoctor(a.DoctorID) || req.OwnsPatient(a.PatientID)
}

func validateRange(f Filter) error {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return apperr.InvalidInput("fecha_inicio must not be after fecha_fin")
	}
	return nil
}
