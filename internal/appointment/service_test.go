package appointment

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
)

// -- mocks --

type mockRepo struct {
	items  map[int64]*Appointment
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[int64]*Appointment)}
}

func (m *mockRepo) Create(ctx context.Context, a *Appointment) error {
	m.nextID++
	a.ID = m.nextID
	stored := *a
	m.items[a.ID] = &stored
	return nil
}

func (m *mockRepo) Get(ctx context.Context, id int64) (*Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockRepo) List(ctx context.Context, q Query) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.items {
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.From != nil && a.ProposedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && a.ProposedAt.After(*q.To) {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.Before(out[j].ProposedAt) })
	return out, nil
}

func (m *mockRepo) Update(ctx context.Context, a *Appointment) error {
	stored, ok := m.items[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	requestedAt := stored.RequestedAt
	updated := *a
	updated.RequestedAt = requestedAt
	m.items[a.ID] = &updated
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) HasOverlap(ctx context.Context, doctorID int64, from, to time.Time, excludeID int64) (bool, error) {
	for _, a := range m.items {
		if a.DoctorID == doctorID && a.ID != excludeID && a.State != StateCancelled &&
			a.ProposedAt.After(from) && a.ProposedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

type mockPatients map[int64]*patient.Patient

func (m mockPatients) Get(ctx context.Context, id int64) (*patient.Patient, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, patient.ErrPatientNotFound
}

type mockDoctors map[int64]*doctor.Doctor

func (m mockDoctors) Get(ctx context.Context, id int64) (*doctor.Doctor, error) {
	if d, ok := m[id]; ok {
		return d, nil
	}
	return nil, doctor.ErrDoctorNotFound
}

type nopAudit struct{}

func (nopAudit) LogEvent(ctx context.Context, e *audit.Event) error { return nil }
func (nopAudit) QueryEvents(ctx context.Context, f map[string]interface{}, from, size int) ([]audit.Event, error) {
	return nil, nil
}

// -- fixtures --

var fixedNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func id(v int64) *int64 { return &v }

func admin() directory.Requester {
	return directory.Requester{UserID: 1, Role: directory.RoleAdmin}
}

func doctorUser(doctorID int64) directory.Requester {
	return directory.Requester{UserID: 100 + doctorID, Role: directory.RoleDoctor, DoctorID: id(doctorID)}
}

func patientUser(patientID int64) directory.Requester {
	return directory.Requester{UserID: 200 + patientID, Role: directory.RolePatient, PatientID: id(patientID)}
}

func newTestService(cfg Config) (*service, *mockRepo) {
	repo := newMockRepo()
	patients := mockPatients{
		1: {ID: 1, FirstName: "Ana", LastName: "Pérez"},
		2: {ID: 2, FirstName: "Bruno", LastName: "Díaz"},
	}
	doctors := mockDoctors{
		10: {ID: 10, FirstName: "Carla", LastName: "Ruiz", SpecialtyID: 1},
		20: {ID: 20, FirstName: "Diego", LastName: "Mora", SpecialtyID: 2},
	}
	svc := NewService(repo, patients, doctors, nopAudit{}, cfg).(*service)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func seed(t *testing.T, svc *service, patientID, doctorID int64, at time.Time) *Appointment {
	t.Helper()
	a, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(patientID), DoctorID: doctorID, ProposedAt: at, Reason: "control"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); err == nil || got != want {
		t.Fatalf("error = %v (kind %v), want kind %v", err, got, want)
	}
}

// -- Create --

func TestCreateByPatient(t *testing.T) {
	svc, repo := newTestService(Config{})
	at := fixedNow.Add(48 * time.Hour)

	a, err := svc.Create(context.Background(), patientUser(1), CreateInput{DoctorID: 10, ProposedAt: at, Reason: "  dolor de cabeza "})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if a.ID == 0 || a.PatientID != 1 || a.DoctorID != 10 {
		t.Errorf("appointment = %+v", a)
	}
	if a.State != StateRequested {
		t.Errorf("state = %s, want %s", a.State, StateRequested)
	}
	if !a.RequestedAt.Equal(fixedNow) {
		t.Errorf("requested at = %v, want %v", a.RequestedAt, fixedNow)
	}
	if a.Reason != "dolor de cabeza" {
		t.Errorf("reason = %q", a.Reason)
	}
	if a.Patient == nil || a.Patient.FirstName != "Ana" || a.Doctor == nil || a.Doctor.FirstName != "Carla" {
		t.Errorf("details not attached: %+v / %+v", a.Patient, a.Doctor)
	}
	if len(repo.items) != 1 {
		t.Errorf("expected 1 stored appointment, got %d", len(repo.items))
	}
}

func TestCreateRejectsPastDate(t *testing.T) {
	svc, repo := newTestService(Config{})
	for _, at := range []time.Time{fixedNow.Add(-time.Minute), fixedNow} {
		_, err := svc.Create(context.Background(), patientUser(1), CreateInput{DoctorID: 10, ProposedAt: at})
		assertKind(t, err, apperr.KindInvalidInput)
		if !errors.Is(err, ErrPastDate) {
			t.Errorf("error = %v, want ErrPastDate", err)
		}
	}
	if len(repo.items) != 0 {
		t.Error("past-dated appointment was persisted")
	}
}

func TestCreateRejectsCrossPatient(t *testing.T) {
	svc, repo := newTestService(Config{})
	_, err := svc.Create(context.Background(), patientUser(1), CreateInput{PatientID: id(2), DoctorID: 10, ProposedAt: fixedNow.Add(time.Hour)})
	assertKind(t, err, apperr.KindForbidden)
	if len(repo.items) != 0 {
		t.Error("appointment persisted for another patient")
	}
}

func TestCreatePatientWithoutProfile(t *testing.T) {
	svc, _ := newTestService(Config{})
	req := directory.Requester{UserID: 5, Role: directory.RolePatient}
	_, err := svc.Create(context.Background(), req, CreateInput{DoctorID: 10, ProposedAt: fixedNow.Add(time.Hour)})
	if !errors.Is(err, ErrNotPatient) {
		t.Fatalf("error = %v, want ErrNotPatient", err)
	}
}

func TestCreateByAdminForAnyPatient(t *testing.T) {
	svc, _ := newTestService(Config{})
	a, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(2), DoctorID: 20, ProposedAt: fixedNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if a.PatientID != 2 || a.DoctorID != 20 {
		t.Errorf("appointment = %+v", a)
	}

	_, err = svc.Create(context.Background(), admin(), CreateInput{DoctorID: 20, ProposedAt: fixedNow.Add(time.Hour)})
	assertKind(t, err, apperr.KindInvalidInput)
}

func TestCreateMissingReferences(t *testing.T) {
	svc, _ := newTestService(Config{})
	at := fixedNow.Add(time.Hour)

	_, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(99), DoctorID: 10, ProposedAt: at})
	assertKind(t, err, apperr.KindNotFound)

	_, err = svc.Create(context.Background(), patientUser(1), CreateInput{DoctorID: 99, ProposedAt: at})
	assertKind(t, err, apperr.KindNotFound)

	_, err = svc.Create(context.Background(), patientUser(1), CreateInput{ProposedAt: at})
	assertKind(t, err, apperr.KindInvalidInput)
}

func TestCreateByDoctor(t *testing.T) {
	svc, _ := newTestService(Config{})
	at := fixedNow.Add(time.Hour)

	if _, err := svc.Create(context.Background(), doctorUser(10), CreateInput{PatientID: id(1), DoctorID: 10, ProposedAt: at}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	a, err := svc.Create(context.Background(), doctorUser(10), CreateInput{PatientID: id(1), DoctorID: 20, ProposedAt: at})
	if err != nil {
		t.Fatalf("booking for a colleague rejected: %v", err)
	}
	if a.DoctorID != 20 {
		t.Errorf("DoctorID = %d, want 20", a.DoctorID)
	}
}

func TestCreateByDoctorStrictOwnership(t *testing.T) {
	svc, _ := newTestService(Config{StrictOwnership: true})
	at := fixedNow.Add(time.Hour)

	if _, err := svc.Create(context.Background(), doctorUser(10), CreateInput{PatientID: id(1), DoctorID: 10, ProposedAt: at}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	_, err := svc.Create(context.Background(), doctorUser(10), CreateInput{PatientID: id(1), DoctorID: 20, ProposedAt: at})
	assertKind(t, err, apperr.KindForbidden)
}

func TestCreateUnknownRole(t *testing.T) {
	svc, _ := newTestService(Config{})
	_, err := svc.Create(context.Background(), directory.Requester{UserID: 9}, CreateInput{PatientID: id(1), DoctorID: 10, ProposedAt: fixedNow.Add(time.Hour)})
	assertKind(t, err, apperr.KindForbidden)
}

func TestDoubleBookingAllowedByDefault(t *testing.T) {
	svc, repo := newTestService(Config{})
	at := fixedNow.Add(24 * time.Hour)
	seed(t, svc, 1, 10, at)
	seed(t, svc, 2, 10, at)
	if len(repo.items) != 2 {
		t.Fatalf("expected both appointments stored, got %d", len(repo.items))
	}
}

func TestDoubleBookingPrevented(t *testing.T) {
	svc, _ := newTestService(Config{PreventDoubleBooking: true, SlotLength: 30 * time.Minute})
	at := fixedNow.Add(24 * time.Hour)
	first := seed(t, svc, 1, 10, at)

	_, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(2), DoctorID: 10, ProposedAt: at.Add(15 * time.Minute)})
	assertKind(t, err, apperr.KindConflict)

	// Exactly one slot later is free, and so is another doctor.
	if _, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(2), DoctorID: 10, ProposedAt: at.Add(30 * time.Minute)}); err != nil {
		t.Errorf("adjacent slot rejected: %v", err)
	}
	if _, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(2), DoctorID: 20, ProposedAt: at}); err != nil {
		t.Errorf("other doctor rejected: %v", err)
	}

	// A cancelled appointment frees its slot.
	cancelled := StateCancelled
	if _, err := svc.Update(context.Background(), admin(), first.ID, Patch{State: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Create(context.Background(), admin(), CreateInput{PatientID: id(2), DoctorID: 10, ProposedAt: at.Add(-10 * time.Minute)}); err != nil {
		t.Errorf("slot of cancelled appointment rejected: %v", err)
	}
}

// -- List --

func TestRoleScopedListing(t *testing.T) {
	svc, _ := newTestService(Config{})
	ctx := context.Background()
	a1 := seed(t, svc, 1, 10, fixedNow.Add(72*time.Hour))
	a2 := seed(t, svc, 2, 10, fixedNow.Add(24*time.Hour))
	a3 := seed(t, svc, 1, 20, fixedNow.Add(48*time.Hour))

	ids := func(list []*Appointment) []int64 {
		out := make([]int64, len(list))
		for i, a := range list {
			out[i] = a.ID
		}
		return out
	}
	equal := func(got, want []int64) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	all, err := svc.List(ctx, admin(), Filter{})
	if err != nil {
		t.Fatalf("admin List() error: %v", err)
	}
	if got := ids(all); !equal(got, []int64{a2.ID, a3.ID, a1.ID}) {
		t.Errorf("admin list = %v, ordered by date want [%d %d %d]", got, a2.ID, a3.ID, a1.ID)
	}

	filtered, _ := svc.List(ctx, admin(), Filter{DoctorID: id(10)})
	if got := ids(filtered); !equal(got, []int64{a2.ID, a1.ID}) {
		t.Errorf("admin doctor filter = %v", got)
	}

	mine, _ := svc.List(ctx, doctorUser(20), Filter{DoctorID: id(10)})
	if got := ids(mine); !equal(got, []int64{a3.ID}) {
		t.Errorf("doctor list = %v, want only [%d]", got, a3.ID)
	}

	from := fixedNow.Add(60 * time.Hour)
	ranged, _ := svc.List(ctx, doctorUser(10), Filter{From: &from})
	if got := ids(ranged); !equal(got, []int64{a1.ID}) {
		t.Errorf("doctor ranged list = %v", got)
	}

	own, _ := svc.List(ctx, patientUser(1), Filter{DoctorID: id(20), From: &from})
	if got := ids(own); !equal(got, []int64{a3.ID, a1.ID}) {
		t.Errorf("patient list = %v, filters must be ignored", got)
	}
}

func TestListRangeInclusive(t *testing.T) {
	svc, _ := newTestService(Config{})
	at := fixedNow.Add(24 * time.Hour)
	a := seed(t, svc, 1, 10, at)

	list, err := svc.ListAll(context.Background(), admin(), Filter{From: &at, To: &at})
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("inclusive bounds returned %d appointments", len(list))
	}

	before := at.Add(-time.Hour)
	_, err = svc.ListAll(context.Background(), admin(), Filter{From: &at, To: &before})
	assertKind(t, err, apperr.KindInvalidInput)
}

func TestListEndpointsPermissions(t *testing.T) {
	svc, _ := newTestService(Config{})
	ctx := context.Background()

	if _, err := svc.ListForDoctor(ctx, patientUser(1), Filter{}); !errors.Is(err, ErrNotDoctor) {
		t.Errorf("ListForDoctor(patient) error = %v", err)
	}
	if _, err := svc.ListForDoctor(ctx, admin(), Filter{}); err != nil {
		t.Errorf("ListForDoctor(admin) error = %v", err)
	}
	if _, err := svc.ListForPatient(ctx, doctorUser(10)); !errors.Is(err, ErrNotPatient) {
		t.Errorf("ListForPatient(doctor) error = %v", err)
	}
	if _, err := svc.ListAll(ctx, doctorUser(10), Filter{}); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("ListAll(doctor) error = %v", err)
	}
	_, err := svc.List(ctx, directory.Requester{UserID: 3}, Filter{})
	assertKind(t, err, apperr.KindForbidden)
}

// -- Update --

func TestUpdatePermissions(t *testing.T) {
	svc, _ := newTestService(Config{})
	ctx := context.Background()
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	confirmed := StateConfirmed
	reason := "seguimiento"

	if _, err := svc.Update(ctx, doctorUser(10), a.ID, Patch{State: &confirmed}); err != nil {
		t.Errorf("assigned doctor update: %v", err)
	}
	if _, err := svc.Update(ctx, patientUser(1), a.ID, Patch{Reason: &reason}); err != nil {
		t.Errorf("owning patient update: %v", err)
	}
	if _, err := svc.Update(ctx, admin(), a.ID, Patch{Reason: &reason}); err != nil {
		t.Errorf("admin update: %v", err)
	}

	_, err := svc.Update(ctx, doctorUser(20), a.ID, Patch{Reason: &reason})
	assertKind(t, err, apperr.KindForbidden)
	_, err = svc.Update(ctx, patientUser(2), a.ID, Patch{Reason: &reason})
	assertKind(t, err, apperr.KindForbidden)
	_, err = svc.Update(ctx, admin(), 999, Patch{Reason: &reason})
	assertKind(t, err, apperr.KindNotFound)
}

func TestUpdateFields(t *testing.T) {
	svc, repo := newTestService(Config{})
	ctx := context.Background()
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	originalRequestedAt := repo.items[a.ID].RequestedAt

	svc.now = func() time.Time { return fixedNow.Add(time.Hour) }
	newTime := fixedNow.Add(96 * time.Hour)
	completed := StateCompleted
	updated, err := svc.Update(ctx, admin(), a.ID, Patch{DoctorID: id(20), ProposedAt: &newTime, State: &completed})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.DoctorID != 20 || updated.Doctor == nil || updated.Doctor.ID != 20 {
		t.Errorf("doctor not reassigned: %+v", updated)
	}
	if !updated.ProposedAt.Equal(newTime) || updated.State != StateCompleted {
		t.Errorf("updated = %+v", updated)
	}
	if !repo.items[a.ID].RequestedAt.Equal(originalRequestedAt) {
		t.Error("fecha_solicitud changed on update")
	}

	_, err = svc.Update(ctx, admin(), a.ID, Patch{DoctorID: id(99)})
	assertKind(t, err, apperr.KindNotFound)
}

func TestUpdateRejectsInvalidState(t *testing.T) {
	svc, repo := newTestService(Config{})
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	bogus := State("archivada")

	_, err := svc.Update(context.Background(), admin(), a.ID, Patch{State: &bogus})
	assertKind(t, err, apperr.KindInvalidInput)
	if repo.items[a.ID].State != StateRequested {
		t.Error("invalid state persisted")
	}
}

func TestUpdatePatientMayReassignPatientByDefault(t *testing.T) {
	svc, repo := newTestService(Config{})
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	updated, err := svc.Update(context.Background(), patientUser(1), a.ID, Patch{PatientID: id(2)})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.PatientID != 2 || repo.items[a.ID].PatientID != 2 {
		t.Errorf("PatientID = %d, want 2", updated.PatientID)
	}
}

func TestUpdatePatientCannotReassignPatient(t *testing.T) {
	svc, _ := newTestService(Config{StrictOwnership: true})
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	_, err := svc.Update(context.Background(), patientUser(1), a.ID, Patch{PatientID: id(2)})
	assertKind(t, err, apperr.KindForbidden)
}

func TestTransitionsFreeByDefault(t *testing.T) {
	svc, _ := newTestService(Config{})
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	for _, next := range []State{StateCompleted, StateRequested, StateCancelled, StateConfirmed} {
		s := next
		if _, err := svc.Update(context.Background(), admin(), a.ID, Patch{State: &s}); err != nil {
			t.Fatalf("transition to %s rejected: %v", next, err)
		}
	}
}

func TestStrictTransitions(t *testing.T) {
	svc, _ := newTestService(Config{StrictTransitions: true})
	ctx := context.Background()
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))

	confirmed, completed, requested := StateConfirmed, StateCompleted, StateRequested
	if _, err := svc.Update(ctx, admin(), a.ID, Patch{State: &confirmed}); err != nil {
		t.Fatalf("requested -> confirmed: %v", err)
	}
	if _, err := svc.Update(ctx, admin(), a.ID, Patch{State: &completed}); err != nil {
		t.Fatalf("confirmed -> completed: %v", err)
	}
	_, err := svc.Update(ctx, admin(), a.ID, Patch{State: &requested})
	assertKind(t, err, apperr.KindInvalidInput)
}

// -- Delete --

func TestDeletePermissions(t *testing.T) {
	svc, repo := newTestService(Config{})
	ctx := context.Background()
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))
	b := seed(t, svc, 2, 20, fixedNow.Add(48*time.Hour))

	err := svc.Delete(ctx, patientUser(1), a.ID)
	if !errors.Is(err, ErrDeleteForbidden) {
		t.Fatalf("owning patient delete error = %v", err)
	}
	assertKind(t, svc.Delete(ctx, doctorUser(20), a.ID), apperr.KindForbidden)
	if _, ok := repo.items[a.ID]; !ok {
		t.Fatal("appointment removed despite forbidden delete")
	}

	if err := svc.Delete(ctx, doctorUser(10), a.ID); err != nil {
		t.Fatalf("assigned doctor delete: %v", err)
	}
	if err := svc.Delete(ctx, admin(), b.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if len(repo.items) != 0 {
		t.Errorf("expected no appointments left, got %d", len(repo.items))
	}

	assertKind(t, svc.Delete(ctx, admin(), a.ID), apperr.KindNotFound)
}

func TestGetPermissions(t *testing.T) {
	svc, _ := newTestService(Config{})
	a := seed(t, svc, 1, 10, fixedNow.Add(24*time.Hour))

	if _, err := svc.Get(context.Background(), patientUser(1), a.ID); err != nil {
		t.Errorf("owner Get() error: %v", err)
	}
	_, err := svc.Get(context.Background(), patientUser(2), a.ID)
	assertKind(t, err, apperr.KindForbidden)
}
