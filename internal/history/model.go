// Package history assembles a patient's clinical history (consultations,
// diagnoses and treatments) from one ordered left-join query.
package history

import (
	"time"

	"github.com/mesikahq/clinic-records/internal/dates"
)

// Row is one line of the history query. Diagnosis and treatment columns are
// nil where the left join found nothing.
type Row struct {
	PatientID        int64
	PatientFirstName string
	PatientLastName  string
	PatientDNI       string
	PatientBirthDate time.Time
	PatientPhone     string
	PatientAddress   string

	HistoryID           *int64
	HistoryStartDate    *time.Time
	HistoryObservations *string

	ConsultationID     int64
	ConsultationDate   time.Time
	ConsultationReason string

	DoctorID        int64
	DoctorFirstName string
	DoctorLastName  string
	DoctorDNI       string
	DoctorPhone     string
	DoctorSpecialty string

	DiagnosisID          *int64
	DiagnosisDescription *string
	DiagnosisDate        *time.Time

	TreatmentID           *int64
	TreatmentDescription  *string
	TreatmentInstructions *string
	TreatmentDurationDays *int32
	TreatmentStartDate    *time.Time
}

type ClinicalHistoryView struct {
	Patient          PatientSummary      `json:"patient"`
	HistoryID        *int64              `json:"history_id"`
	HistoryStartDate *dates.Date         `json:"history_start_date"`
	Observations     string              `json:"observations"`
	Consultations    []*ConsultationNode `json:"consultations"`
}

type PatientSummary struct {
	ID        int64      `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	DNI       string     `json:"dni"`
	BirthDate dates.Date `json:"birth_date"`
	Phone     string     `json:"phone"`
	Address   string     `json:"address"`
}

type DoctorSummary struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	DNI       string `json:"dni"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
}

type ConsultationNode struct {
	ID        int64            `json:"id"`
	Date      dates.Date       `json:"date"`
	Reason    string           `json:"reason"`
	Doctor    DoctorSummary    `json:"doctor"`
	Diagnoses []*DiagnosisNode `json:"diagnoses"`
}

type DiagnosisNode struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Date        dates.Date      `json:"date"`
	Treatments  []TreatmentNode `json:"treatments"`
}

type TreatmentNode struct {
	ID           int64      `json:"id"`
	Description  string     `json:"description"`
	Instructions string     `json:"instructions"`
	DurationDays *int32     `json:"duration_days"`
	StartDate    dates.Date `json:"start_date"`
}
