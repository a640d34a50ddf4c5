package appointment

import "time"

const (
	colorConfirmed = "#4CAF50"
	colorRequested = "#FF9800"
	colorCancelled = "#F44336"
	colorDefault   = "#9E9E9E"
)

type CalendarEvent struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	ExtendedProps   EventProps `json:"extendedProps"`
	BackgroundColor string     `json:"backgroundColor"`
	BorderColor     string     `json:"borderColor"`
}

type EventProps struct {
	Reason      string `json:"motivo"`
	State       State  `json:"estado"`
	PatientID   int64  `json:"paciente_id"`
	PatientName string `json:"paciente_nombre"`
	DoctorID    int64  `json:"medico_id"`
	DoctorName  string `json:"medico_nombre"`
}

func StateColor(s State) string {
	switch s {
	case StateConfirmed:
		return colorConfirmed
	case StateRequested:
		return colorRequested
	case StateCancelled:
		return colorCancelled
	default:
		return colorDefault
	}
}

// CalendarEvents projects appointments onto calendar widget events of the
// given slot length.
func CalendarEvents(appointments []*Appointment, slot time.Duration) []CalendarEvent {
	events := make([]CalendarEvent, 0, len(appointments))
	for _, a := range appointments {
		props := EventProps{
			Reason:    a.Reason,
			State:     a.State,
			PatientID: a.PatientID,
			DoctorID:  a.DoctorID,
		}
		if a.Patient != nil {
			props.PatientName = a.Patient.FullName()
		}
		if a.Doctor != nil {
			props.DoctorName = a.Doctor.FullName()
		}

		color := StateColor(a.State)
		events = append(events, CalendarEvent{
			ID:              a.ID,
			Title:           "Cita: " + props.PatientName,
			Start:           a.ProposedAt,
			End:             a.ProposedAt.Add(slot),
			ExtendedProps:   props,
			BackgroundColor: color,
			BorderColor:     color,
		})
	}
	return events
}
