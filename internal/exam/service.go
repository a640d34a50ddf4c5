package exam

import (
	"context"
	"strconv"
	"strings"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/dates"
	"github.com/mesikahq/clinic-records/internal/directory"
)

var (
	ErrStaffOnly        = apperr.Forbidden("only administrators and doctors can manage exams")
	ErrAdminOnly        = apperr.Forbidden("only administrators can manage exam types")
	ErrNotOwnExam       = apperr.Forbidden("you can only view your own exams")
	ErrAlreadyCompleted = apperr.Conflict("exam is already completed")
)

type Service interface {
	ListTypes(ctx context.Context) ([]*Type, error)
	CreateType(ctx context.Context, req directory.Requester, t *Type) error
	UpdateType(ctx context.Context, req directory.Requester, t *Type) error
	DeleteType(ctx context.Context, req directory.Requester, id int64) error

	Create(ctx context.Context, req directory.Requester, e *Exam) error
	List(ctx context.Context, req directory.Requester, patientID *int64) ([]*Exam, error)
	Complete(ctx context.Context, req directory.Requester, id int64, c Completion) (*Exam, error)
}

type service struct {
	store Store
	audit audit.Service
	today func() dates.Date
}

func NewService(store Store, audit audit.Service) Service {
	return &service{store: store, audit: audit, today: dates.Today}
}

func isStaff(req directory.Requester) bool {
	return req.IsAdmin() || req.HasRole(directory.RoleDoctor)
}

func (s *service) ListTypes(ctx context.Context) ([]*Type, error) {
	return s.store.ListTypes(ctx)
}

func (s *service) CreateType(ctx context.Context, req directory.Requester, t *Type) error {
	if !req.IsAdmin() {
		return ErrAdminOnly
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return s.store.CreateType(ctx, t)
}

func (s *service) UpdateType(ctx context.Context, req directory.Requester, t *Type) error {
	if !req.IsAdmin() {
		return ErrAdminOnly
	}
	if err := t.Validate(); err != nil {
		return err
	}
	return s.store.UpdateType(ctx, t)
}

func (s *service) DeleteType(ctx context.Context, req directory.Requester, id int64) error {
	if !req.IsAdmin() {
		return ErrAdminOnly
	}
	return s.store.DeleteType(ctx, id)
}

// Create orders an exam. A doctor ordering without naming one is recorded as
// the ordering doctor.
func (s *service) Create(ctx context.Context, req directory.Requester, e *Exam) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.DoctorID == nil && req.DoctorID != nil {
		e.DoctorID = req.DoctorID
	}
	if e.RequestedOn.IsZero() {
		e.RequestedOn = s.today()
	}
	e.State = StateRequested
	e.PerformedOn, e.ResultOn = nil, nil
	e.Interpretation, e.ResultFile = "", ""

	if err := s.store.Create(ctx, e); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventModify, "CREATE", e.ID)
	return nil
}

// List pins a patient caller to their own exams.
func (s *service) List(ctx context.Context, req directory.Requester, patientID *int64) ([]*Exam, error) {
	if !isStaff(req) {
		if req.PatientID == nil {
			return nil, ErrNotOwnExam
		}
		if patientID != nil && *patientID != *req.PatientID {
			return nil, ErrNotOwnExam
		}
		patientID = req.PatientID
	}
	return s.store.List(ctx, patientID)
}

func (s *service) Complete(ctx context.Context, req directory.Requester, id int64, c Completion) (*Exam, error) {
	if !isStaff(req) {
		return nil, ErrStaffOnly
	}
	if c.ResultOn.IsZero() {
		return nil, apperr.InvalidInput("fecha_resultado is required")
	}
	c.Interpretation = strings.TrimSpace(c.Interpretation)

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.State == StateCompleted {
		return nil, ErrAlreadyCompleted
	}
	if c.ResultOn.Before(e.RequestedOn.Time) {
		return nil, apperr.InvalidInput("fecha_resultado cannot be before fecha_solicitud")
	}
	if err := s.store.Complete(ctx, id, c); err != nil {
		return nil, err
	}
	s.logEvent(ctx, audit.EventModify, "COMPLETE", id)
	return s.store.Get(ctx, id)
}

func (s *service) logEvent(ctx context.Context, eventType audit.EventType, action string, id int64) {
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  eventType,
		Action:     action,
		Resource:   "exam",
		ResourceID: strconv.FormatInt(id, 10),
	})
}
