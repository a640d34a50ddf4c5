package appointment

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
)

func TestStateColor(t *testing.T) {
	want := map[State]string{
		StateConfirmed: "#4CAF50",
		StateRequested: "#FF9800",
		StateCancelled: "#F44336",
		StateCompleted: "#9E9E9E",
		State("otro"):  "#9E9E9E",
	}
	for state, color := range want {
		if got := StateColor(state); got != color {
			t.Errorf("StateColor(%s) = %s, want %s", state, got, color)
		}
	}
}

func TestCalendarEvents(t *testing.T) {
	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	list := []*Appointment{
		{
			ID: 4, PatientID: 1, DoctorID: 10, ProposedAt: start, Reason: "control", State: StateConfirmed,
			Patient: &patient.Patient{ID: 1, FirstName: "Ana", LastName: "Pérez"},
			Doctor:  &doctor.Doctor{ID: 10, FirstName: "Carla", LastName: "Ruiz"},
		},
		{ID: 5, PatientID: 2, DoctorID: 10, ProposedAt: start.Add(time.Hour), State: StateRequested},
	}

	events := CalendarEvents(list, 30*time.Minute)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	e := events[0]
	if e.Title != "Cita: Ana Pérez" {
		t.Errorf("title = %q", e.Title)
	}
	if !e.End.Equal(start.Add(30 * time.Minute)) {
		t.Errorf("end = %v", e.End)
	}
	if e.BackgroundColor != "#4CAF50" || e.ExtendedProps.DoctorName != "Carla Ruiz" || e.ExtendedProps.PatientID != 1 {
		t.Errorf("event = %+v", e)
	}
	if events[1].ExtendedProps.PatientName != "" || events[1].BackgroundColor != "#FF9800" {
		t.Errorf("event without details = %+v", events[1])
	}

	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"extendedProps":{"motivo":"control","estado":"confirmada"`, `"backgroundColor":"#4CAF50"`, `"start":"2025-07-01T09:00:00Z"`} {
		if !strings.Contains(string(out), key) {
			t.Errorf("JSON missing %s: %s", key, out)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateRequested, StateConfirmed, true},
		{StateRequested, StateCompleted, true},
		{StateConfirmed, StateCancelled, true},
		{StateConfirmed, StateRequested, false},
		{StateCancelled, StateConfirmed, false},
		{StateCompleted, StateCancelled, false},
		{StateCompleted, StateCompleted, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseState(t *testing.T) {
	if s, err := ParseState("confirmada"); err != nil || s != StateConfirmed {
		t.Errorf("ParseState(confirmada) = %s, %v", s, err)
	}
	if _, err := ParseState("confirmed"); err == nil {
		t.Error("expected error for unknown estado")
	}
}
