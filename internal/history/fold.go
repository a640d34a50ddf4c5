package history

import (
	"sort"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/dates"
)

var ErrNoHistory = apperr.NotFound("patient has no clinical history")

// Diagnoses are keyed by their consultation as well so two consultations can
// never share a node.
type diagnosisKey struct {
	consultationID int64
	diagnosisID    int64
}

// folder builds the tree in one forward pass over the rows. Nodes are held
// by pointer so later rows can attach children to nodes already placed in
// their parent's list.
type folder struct {
	view          *ClinicalHistoryView
	consultations map[int64]*ConsultationNode
	diagnoses     map[diagnosisKey]*DiagnosisNode
	treatments    map[diagnosisKey]map[int64]struct{}
}

func newFolder() *folder {
	return &folder{
		consultations: make(map[int64]*ConsultationNode),
		diagnoses:     make(map[diagnosisKey]*DiagnosisNode),
		treatments:    make(map[diagnosisKey]map[int64]struct{}),
	}
}

func (f *folder) add(r *Row) {
	if f.view == nil {
		f.view = headerFrom(r)
	}

	consultation, ok := f.consultations[r.ConsultationID]
	if !ok {
		consultation = &ConsultationNode{
			ID:     r.ConsultationID,
			Date:   dates.Of(r.ConsultationDate),
			Reason: r.ConsultationReason,
			Doctor: DoctorSummary{
				ID:        r.DoctorID,
				FirstName: r.DoctorFirstName,
				LastName:  r.DoctorLastName,
				DNI:       r.DoctorDNI,
				Phone:     r.DoctorPhone,
				Specialty: r.DoctorSpecialty,
			},
			Diagnoses: []*DiagnosisNode{},
		}
		f.consultations[r.ConsultationID] = consultation
		f.view.Consultations = append(f.view.Consultations, consultation)
	}

	if r.DiagnosisID == nil {
		return
	}
	key := diagnosisKey{consultationID: r.ConsultationID, diagnosisID: *r.DiagnosisID}
	diagnosis, ok := f.diagnoses[key]
	if !ok {
		diagnosis = &DiagnosisNode{
			ID:          *r.DiagnosisID,
			Description: deref(r.DiagnosisDescription),
			Treatments:  []TreatmentNode{},
		}
		if r.DiagnosisDate != nil {
			diagnosis.Date = dates.Of(*r.DiagnosisDate)
		}
		f.diagnoses[key] = diagnosis
		f.treatments[key] = make(map[int64]struct{})
		consultation.Diagnoses = append(consultation.Diagnoses, diagnosis)
	}

	if r.TreatmentID == nil {
		return
	}
	seen := f.treatments[key]
	if _, dup := seen[*r.TreatmentID]; dup {
		return
	}
	seen[*r.TreatmentID] = struct{}{}

	treatment := TreatmentNode{
		ID:           *r.TreatmentID,
		Description:  deref(r.TreatmentDescription),
		Instructions: deref(r.TreatmentInstructions),
		DurationDays: r.TreatmentDurationDays,
	}
	if r.TreatmentStartDate != nil {
		treatment.StartDate = dates.Of(*r.TreatmentStartDate)
	}
	diagnosis.Treatments = append(diagnosis.Treatments, treatment)
}

// result returns the folded tree ordered newest first at every level. The
// sorts are stable, so equal dates keep the order the rows arrived in.
func (f *folder) result() (*ClinicalHistoryView, error) {
	if f.view == nil {
		return nil, ErrNoHistory
	}

	sort.SliceStable(f.view.Consultations, func(i, j int) bool {
		return f.view.Consultations[i].Date.After(f.view.Consultations[j].Date.Time)
	})
	for _, c := range f.view.Consultations {
		sort.SliceStable(c.Diagnoses, func(i, j int) bool {
			return c.Diagnoses[i].Date.After(c.Diagnoses[j].Date.Time)
		})
		for _, d := range c.Diagnoses {
			sort.SliceStable(d.Treatments, func(i, j int) bool {
				return d.Treatments[i].StartDate.After(d.Treatments[j].StartDate.Time)
			})
		}
	}
	return f.view, nil
}

// Fold collapses rows for a single patient into the nested view.
func Fold(rows []Row) (*ClinicalHistoryView, error) {
	f := newFolder()
	for i := range rows {
		f.add(&rows[i])
	}
	return f.result()
}

func headerFrom(r *Row) *ClinicalHistoryView {
	return &ClinicalHistoryView{
		Patient: PatientSummary{
			ID:        r.PatientID,
			FirstName: r.PatientFirstName,
			LastName:  r.PatientLastName,
			DNI:       r.PatientDNI,
			BirthDate: dates.Of(r.PatientBirthDate),
			Phone:     r.PatientPhone,
			Address:   r.PatientAddress,
		},
		HistoryID:        r.HistoryID,
		HistoryStartDate: dates.Ptr(r.HistoryStartDate),
		Observations:     deref(r.HistoryObservations),
		Consultations:    []*ConsultationNode{},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
