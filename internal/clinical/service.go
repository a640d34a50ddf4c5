package clinical

import (
	"context"
	"errors"
	"strconv"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/dates"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/encryption"
	"github.com/mesikahq/clinic-records/internal/patient"
)

var (
	ErrStaffOnly      = apperr.Forbidden("only administrators and doctors can manage clinical records")
	ErrNotOwnRecord   = apperr.Forbidden("you can only view your own clinical records")
	ErrOtherDoctor    = apperr.Forbidden("doctors can only register their own consultations")
	ErrNoDoctorRecord = apperr.Forbidden("user has no doctor profile")
)

type PatientFinder interface {
	Get(ctx context.Context, id int64) (*patient.Patient, error)
}

type Service interface {
	CreateConsultation(ctx context.Context, req directory.Requester, c *Consultation) error
	GetConsultation(ctx context.Context, req directory.Requester, id int64) (*Consultation, error)
	ListConsultations(ctx context.Context, req directory.Requester, f ConsultationFilter) ([]*Consultation, error)
	DeleteConsultation(ctx context.Context, req directory.Requester, id int64) error

	CreateDiagnosis(ctx context.Context, req directory.Requester, d *Diagnosis) error
	ListDiagnoses(ctx context.Context, req directory.Requester) ([]*Diagnosis, error)
	ListDiagnosesByConsultation(ctx context.Context, req directory.Requester, consultationID int64) ([]*Diagnosis, error)
	ListDiagnosesByPatient(ctx context.Context, req directory.Requester, patientID int64) ([]*Diagnosis, error)
	DeleteDiagnosis(ctx context.Context, req directory.Requester, id int64) error

	CreateTreatment(ctx context.Context, req directory.Requester, t *Treatment) error
	ListTreatments(ctx context.Context, req directory.Requester, diagnosisID *int64) ([]*Treatment, error)
	DeleteTreatment(ctx context.Context, req directory.Requester, id int64) error

	GetBackground(ctx context.Context, req directory.Requester, patientID int64) (*MedicalBackground, error)
	SaveBackground(ctx context.Context, req directory.Requester, b *MedicalBackground) error
}

type service struct {
	store    Store
	patients PatientFinder
	crypto   encryption.Service
	audit    audit.Service
}

func NewService(store Store, patients PatientFinder, crypto encryption.Service, audit audit.Service) Service {
	return &service{store: store, patients: patients, crypto: crypto, audit: audit}
}

func isStaff(req directory.Requester) bool {
	return req.IsAdmin() || req.HasRole(directory.RoleDoctor)
}

// canRead lets staff read any patient's records and a patient only their own.
func canRead(req directory.Requester, patientID int64) bool {
	return isStaff(req) || req.OwnsPatient(patientID)
}

func (s *service) CreateConsultation(ctx context.Context, req directory.Requester, c *Consultation) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if !req.IsAdmin() {
		if req.DoctorID == nil {
			return ErrNoDoctorRecord
		}
		if c.DoctorID == 0 {
			c.DoctorID = *req.DoctorID
		}
		if c.DoctorID != *req.DoctorID {
			return ErrOtherDoctor
		}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateConsultation(ctx, c); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventModify, "CREATE", "consultation", c.ID)
	return nil
}

func (s *service) GetConsultation(ctx context.Context, req directory.Requester, id int64) (*Consultation, error) {
	c, err := s.store.GetConsultation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(req, c.PatientID) {
		return nil, ErrNotOwnRecord
	}
	return c, nil
}

// ListConsultations pins a patient caller to their own consultations.
func (s *service) ListConsultations(ctx context.Context, req directory.Requester, f ConsultationFilter) ([]*Consultation, error) {
	if !isStaff(req) {
		if req.PatientID == nil {
			return nil, ErrNotOwnRecord
		}
		f = ConsultationFilter{PatientID: req.PatientID}
	}
	return s.store.ListConsultations(ctx, f)
}

func (s *service) DeleteConsultation(ctx context.Context, req directory.Requester, id int64) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := s.store.DeleteConsultation(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventDelete, "DELETE", "consultation", id)
	return nil
}

func (s *service) CreateDiagnosis(ctx context.Context, req directory.Requester, d *Diagnosis) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Date.IsZero() {
		d.Date = dates.Today()
	}
	if err := s.store.CreateDiagnosis(ctx, d); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventModify, "CREATE", "diagnosis", d.ID)
	return nil
}

func (s *service) ListDiagnoses(ctx context.Context, req directory.Requester) ([]*Diagnosis, error) {
	if !isStaff(req) {
		return nil, ErrStaffOnly
	}
	return s.store.ListDiagnoses(ctx, DiagnosisFilter{})
}

func (s *service) ListDiagnosesByConsultation(ctx context.Context, req directory.Requester, consultationID int64) ([]*Diagnosis, error) {
	if _, err := s.GetConsultation(ctx, req, consultationID); err != nil {
		return nil, err
	}
	return s.store.ListDiagnoses(ctx, DiagnosisFilter{ConsultationID: &consultationID})
}

func (s *service) ListDiagnosesByPatient(ctx context.Context, req directory.Requester, patientID int64) ([]*Diagnosis, error) {
	if !canRead(req, patientID) {
		return nil, ErrNotOwnRecord
	}
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.ListDiagnoses(ctx, DiagnosisFilter{PatientID: &patientID})
}

func (s *service) DeleteDiagnosis(ctx context.Context, req directory.Requester, id int64) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := s.store.DeleteDiagnosis(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventDelete, "DELETE", "diagnosis", id)
	return nil
}

func (s *service) CreateTreatment(ctx context.Context, req directory.Requester, t *Treatment) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := s.store.CreateTreatment(ctx, t); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventModify, "CREATE", "treatment", t.ID)
	return nil
}

func (s *service) ListTreatments(ctx context.Context, req directory.Requester, diagnosisID *int64) ([]*Treatment, error) {
	if !isStaff(req) {
		return nil, ErrStaffOnly
	}
	return s.store.ListTreatments(ctx, diagnosisID)
}

func (s *service) DeleteTreatment(ctx context.Context, req directory.Requester, id int64) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := s.store.DeleteTreatment(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, audit.EventDelete, "DELETE", "treatment", id)
	return nil
}

// GetBackground returns an empty record for a known patient who has none
// yet, so clients can always edit in place.
func (s *service) GetBackground(ctx context.Context, req directory.Requester, patientID int64) (*MedicalBackground, error) {
	if !canRead(req, patientID) {
		return nil, ErrNotOwnRecord
	}
	b, err := s.store.GetBackground(ctx, patientID)
	if errors.Is(err, ErrBackgroundNotFound) {
		if _, err := s.patients.Get(ctx, patientID); err != nil {
			return nil, err
		}
		return &MedicalBackground{PatientID: patientID}, nil
	}
	if err != nil {
		return nil, err
	}
	for _, field := range b.secretFields() {
		plain, err := s.crypto.DecryptString(*field)
		if err != nil {
			return nil, apperr.Internal(err, "failed to decrypt medical background")
		}
		*field = plain
	}

	s.logEvent(ctx, audit.EventAccess, "READ", "medical_background", patientID)
	return b, nil
}

// SaveBackground seals a copy so the caller's record stays readable.
func (s *service) SaveBackground(ctx context.Context, req directory.Requester, b *MedicalBackground) error {
	if !isStaff(req) {
		return ErrStaffOnly
	}
	if err := b.Validate(); err != nil {
		return err
	}

	sealed := *b
	for _, field := range sealed.secretFields() {
		cipher, err := s.crypto.EncryptString(*field)
		if err != nil {
			return apperr.Internal(err, "failed to encrypt medical background")
		}
		*field = cipher
	}
	if err := s.store.UpsertBackground(ctx, &sealed); err != nil {
		return err
	}
	b.RecordedAt, b.UpdatedAt = sealed.RecordedAt, sealed.UpdatedAt

	s.logEvent(ctx, audit.EventModify, "UPSERT", "medical_background", b.PatientID)
	return nil
}

func (s *service) logEvent(ctx context.Context, eventType audit.EventType, action, resource string, id int64) {
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  eventType,
		Action:     action,
		Resource:   resource,
		ResourceID: strconv.FormatInt(id, 10),
	})
}
