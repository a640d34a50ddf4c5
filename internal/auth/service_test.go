package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/dates"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/patient"
)

type memUserStore struct {
	users  map[int64]*User
	roles  []Role
	nextID int64
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users: map[int64]*User{},
		roles: []Role{
			{ID: 1, Name: "Administrador", Code: "admin"},
			{ID: 2, Name: "Médico", Code: "medico"},
			{ID: 3, Name: "Paciente", Code: "paciente"},
		},
	}
}

func (m *memUserStore) Create(ctx context.Context, u *User) error {
	role, err := m.RoleByCode(ctx, u.RoleCode)
	if err != nil {
		return err
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.RoleName = role.Name
	u.IsActive = true
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *memUserStore) Delete(ctx context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUserStore) GetByID(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memUserStore) List(ctx context.Context) ([]*User, error) {
	out := []*User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memUserStore) UpdatePassword(ctx context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUserStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if u, ok := m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *memUserStore) ListRoles(ctx context.Context) ([]Role, error) {
	return m.roles, nil
}

func (m *memUserStore) RoleByCode(ctx context.Context, code string) (*Role, error) {
	for _, r := range m.roles {
		if r.Code == code {
			r := r
			return &r, nil
		}
	}
	return nil, ErrRoleNotFound
}

type fakePatients struct {
	byDNI     map[string]*patient.Patient
	createErr error
	nextID    int64
}

func newFakePatients() *fakePatients {
	return &fakePatients{byDNI: map[string]*patient.Patient{}, nextID: 100}
}

func (f *fakePatients) Create(ctx context.Context, p *patient.Patient) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byDNI[p.DNI]; ok {
		return patient.ErrDuplicateDNI
	}
	f.nextID++
	p.ID = f.nextID
	f.byDNI[p.DNI] = p
	return nil
}

func (f *fakePatients) GetByDNI(ctx context.Context, dni string) (*patient.Patient, error) {
	if p, ok := f.byDNI[dni]; ok {
		return p, nil
	}
	return nil, patient.ErrPatientNotFound
}

func (f *fakePatients) LinkUser(ctx context.Context, patientID, userID int64) error {
	for _, p := range f.byDNI {
		if p.ID == patientID {
			if p.UserID != nil {
				return patient.ErrAlreadyLinked
			}
			p.UserID = &userID
			return nil
		}
	}
	return patient.ErrPatientNotFound
}

type fakeDoctors struct {
	linked map[int64]int64
}

func (f *fakeDoctors) LinkUser(ctx context.Context, doctorID, userID int64) error {
	if doctorID != 10 {
		return apperr.NotFound("doctor not found")
	}
	f.linked[doctorID] = userID
	return nil
}

type recordingAudit struct {
	events []*audit.Event
}

func (r *recordingAudit) LogEvent(ctx context.Context, e *audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) QueryEvents(ctx context.Context, f map[string]interface{}, from, size int) ([]audit.Event, error) {
	return nil, nil
}

type fixture struct {
	svc      *service
	users    *memUserStore
	patients *fakePatients
	doctors  *fakeDoctors
	audit    *recordingAudit
}

func newFixture() *fixture {
	f := &fixture{
		users:    newMemUserStore(),
		patients: newFakePatients(),
		doctors:  &fakeDoctors{linked: map[int64]int64{}},
		audit:    &recordingAudit{},
	}
	f.svc = NewService(f.users, f.patients, f.doctors, f.audit, ServiceConfig{JWTSecret: "test-secret"}).(*service)
	return f
}

var adminReq = directory.Requester{UserID: 1, Role: directory.RoleAdmin}

func registerInput() RegisterInput {
	return RegisterInput{
		Email:     " Ana@Example.com ",
		Password:  "secreto1",
		FirstName: "Ana",
		LastName:  "Pérez",
		DNI:       "V-123",
		BirthDate: dates.Of(time.Date(1990, 5, 4, 0, 0, 0, 0, time.UTC)),
	}
}

func TestRegisterCreatesPatientProfile(t *testing.T) {
	f := newFixture()

	u, err := f.svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if u.Email != "ana@example.com" || u.RoleCode != "paciente" {
		t.Errorf("user = %+v", u)
	}
	p := f.patients.byDNI["V-123"]
	if p == nil || p.UserID == nil || *p.UserID != u.ID {
		t.Fatalf("patient profile not linked: %+v", p)
	}
	if p.FirstName != "Ana" {
		t.Errorf("patient name = %q", p.FirstName)
	}
}

func TestRegisterAdoptsUnlinkedPatient(t *testing.T) {
	f := newFixture()
	f.patients.byDNI["V-123"] = &patient.Patient{ID: 7, DNI: "V-123"}

	u, err := f.svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if got := f.patients.byDNI["V-123"].UserID; got == nil || *got != u.ID {
		t.Errorf("existing patient not linked, user id = %v", got)
	}
	if len(f.patients.byDNI) != 1 {
		t.Errorf("patients = %d, want the existing one only", len(f.patients.byDNI))
	}
}

func TestRegisterCompensatesOnProfileFailure(t *testing.T) {
	f := newFixture()
	f.patients.createErr = errors.New("insert failed")

	_, err := f.svc.Register(context.Background(), registerInput())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(f.users.users) != 0 {
		t.Errorf("user left behind after failed registration: %d users", len(f.users.users))
	}

	f = newFixture()
	linked := int64(99)
	f.patients.byDNI["V-123"] = &patient.Patient{ID: 7, DNI: "V-123", UserID: &linked}
	_, err = f.svc.Register(context.Background(), registerInput())
	if !errors.Is(err, patient.ErrAlreadyLinked) {
		t.Errorf("error = %v, want ErrAlreadyLinked", err)
	}
	if len(f.users.users) != 0 {
		t.Error("user left behind after conflicting dni")
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture()
	cases := map[string]func(*RegisterInput){
		"missing name":   func(in *RegisterInput) { in.FirstName = "" },
		"short password": func(in *RegisterInput) { in.Password = "abc" },
		"bad email":      func(in *RegisterInput) { in.Email = "not-an-email" },
		"no birth date":  func(in *RegisterInput) { in.BirthDate = dates.Date{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := registerInput()
			mutate(&in)
			_, err := f.svc.Register(context.Background(), in)
			if apperr.KindOf(err) != apperr.KindInvalidInput {
				t.Errorf("error = %v, want invalid input", err)
			}
		})
	}

	if _, err := f.svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	in := registerInput()
	in.DNI = "V-456"
	if _, err := f.svc.Register(context.Background(), in); apperr.KindOf(err) != apperr.KindConflict {
		t.Errorf("duplicate email error = %v", err)
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, _ := f.svc.Register(ctx, registerInput())

	if _, err := f.svc.Login(ctx, "ana@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password error = %v", err)
	}
	if _, err := f.svc.Login(ctx, "nobody@example.com", "secreto1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v", err)
	}

	resp, err := f.svc.Login(ctx, "ANA@example.com", "secreto1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if resp.RoleCode != "paciente" || resp.FirstName != "Ana" || resp.Access == "" {
		t.Errorf("login response = %+v", resp)
	}
	if f.users.users[u.ID].LastLogin == nil {
		t.Error("last login not recorded")
	}
	last := f.audit.events[len(f.audit.events)-1]
	if last.EventType != audit.EventLogin || last.Status == "failure" {
		t.Errorf("last audit event = %+v", last)
	}

	claims, err := f.svc.ValidateToken(ctx, resp.Access)
	if err != nil {
		t.Fatalf("ValidateToken() error: %v", err)
	}
	if claims.UserID != u.ID || claims.Role != "paciente" {
		t.Errorf("claims = %+v", claims)
	}

	f.users.users[u.ID].IsActive = false
	if _, err := f.svc.ValidateToken(ctx, resp.Access); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("inactive user token error = %v", err)
	}
	if _, err := f.svc.Login(ctx, "ana@example.com", "secreto1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive login error = %v", err)
	}
}

func TestValidateTokenRejectsForeignAndExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.svc.Register(ctx, registerInput())

	other := NewService(f.users, f.patients, f.doctors, f.audit, ServiceConfig{JWTSecret: "other-secret"})
	resp, err := other.Login(ctx, "ana@example.com", "secreto1")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if _, err := f.svc.ValidateToken(ctx, resp.Access); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Errorf("foreign token error = %v", err)
	}

	f.svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	resp, _ = f.svc.Login(ctx, "ana@example.com", "secreto1")
	f.svc.now = time.Now
	if _, err := f.svc.ValidateToken(ctx, resp.Access); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v", err)
	}
	if _, err := f.svc.ValidateToken(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token error = %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, _ := f.svc.Register(ctx, registerInput())

	tests := []struct {
		name string
		in   ChangePasswordInput
		want error
	}{
		{"wrong current", ChangePasswordInput{Current: "nope", New: "nuevo123", Confirm: "nuevo123"}, ErrWrongPassword},
		{"mismatch", ChangePasswordInput{Current: "secreto1", New: "nuevo123", Confirm: "nuevo124"}, ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.ChangePassword(ctx, u.ID, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{Current: "secreto1", New: "abc", Confirm: "abc"})
	if apperr.KindOf(err) != apperr.KindInvalidInput || !strings.Contains(err.Error(), "at least 6") {
		t.Errorf("short password error = %v", err)
	}

	if err := f.svc.ChangePassword(ctx, u.ID, ChangePasswordInput{Current: "secreto1", New: "nuevo123", Confirm: "nuevo123"}); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(f.users.users[u.ID].PasswordHash), []byte("nuevo123")) != nil {
		t.Error("password hash not updated")
	}
}

func TestAdminOperations(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	patientReq := directory.Requester{UserID: 5, Role: directory.RolePatient}

	in := CreateUserInput{Email: "medico@example.com", Password: "secreto1", FirstName: "Carla", LastName: "Ruiz", RoleCode: "medico", DoctorID: ptr(10)}
	if _, err := f.svc.CreateUser(ctx, patientReq, in); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("non-admin CreateUser() error = %v", err)
	}
	u, err := f.svc.CreateUser(ctx, adminReq, in)
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	if f.doctors.linked[10] != u.ID || u.IsStaff {
		t.Errorf("doctor link = %v, staff = %v", f.doctors.linked, u.IsStaff)
	}

	bad := in
	bad.Email, bad.DoctorID = "otro@example.com", ptr(11)
	if _, err := f.svc.CreateUser(ctx, adminReq, bad); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("unknown doctor error = %v", err)
	}
	if _, err := f.users.GetByEmail(ctx, "otro@example.com"); err == nil {
		t.Error("user kept after failed doctor link")
	}

	mixed := CreateUserInput{Email: "x@example.com", Password: "secreto1", FirstName: "X", LastName: "Y", RoleCode: "admin", PatientID: ptr(1)}
	if _, err := f.svc.CreateUser(ctx, adminReq, mixed); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("role/profile mismatch error = %v", err)
	}
	unknown := CreateUserInput{Email: "y@example.com", Password: "secreto1", FirstName: "X", LastName: "Y", RoleCode: "enfermero"}
	if _, err := f.svc.CreateUser(ctx, adminReq, unknown); !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("unknown role error = %v", err)
	}

	if _, err := f.svc.ResetPassword(ctx, patientReq, u.ID, "cambiada1"); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("non-admin ResetPassword() error = %v", err)
	}
	if _, err := f.svc.ResetPassword(ctx, adminReq, 404, "cambiada1"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("missing user ResetPassword() error = %v", err)
	}
	if _, err := f.svc.ResetPassword(ctx, adminReq, u.ID, "cambiada1"); err != nil {
		t.Fatalf("ResetPassword() error: %v", err)
	}
	if _, err := f.svc.Login(ctx, "medico@example.com", "cambiada1"); err != nil {
		t.Errorf("login with reset password: %v", err)
	}

	roles, err := f.svc.ListRoles(ctx, adminReq)
	if err != nil || len(roles) != 3 {
		t.Errorf("ListRoles() = %v, %v", roles, err)
	}
	if _, err := f.svc.ListUsers(ctx, patientReq); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("non-admin ListUsers() error = %v", err)
	}
}

func ptr(v int64) *int64 { return &v }
