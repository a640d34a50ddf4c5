package history

import (
	"context"
	"strconv"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
)

type Service interface {
	GetClinicalHistory(ctx context.Context, patientID int64) (*ClinicalHistoryView, error)
}

type service struct {
	store Store
	audit audit.Service
}

func NewService(store Store, audit audit.Service) Service {
	return &service{store: store, audit: audit}
}

func (s *service) GetClinicalHistory(ctx context.Context, patientID int64) (*ClinicalHistoryView, error) {
	if patientID <= 0 {
		return nil, apperr.InvalidInput("invalid patient id")
	}

	f := newFolder()
	err := s.store.Rows(ctx, patientID, func(r *Row) error {
		f.add(r)
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err, "failed to load clinical history")
	}

	view, err := f.result()
	if err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventAccess,
		Action:     "READ",
		Resource:   "clinical_history",
		ResourceID: strconv.FormatInt(patientID, 10),
	})
	return view, nil
}
