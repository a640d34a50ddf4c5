package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/patient"
)

var (
	ErrInvalidCredentials = apperr.Unauthenticated("invalid credentials")
	ErrInvalidToken       = apperr.Unauthenticated("invalid token")
	ErrInactiveUser       = apperr.Unauthenticated("user is inactive or no longer exists")
	ErrWrongPassword      = apperr.InvalidInput("current password is incorrect")
	ErrPasswordMismatch   = apperr.InvalidInput("new passwords do not match")
	ErrAdminOnly          = apperr.Forbidden("only administrators can perform this action")
)

// PatientRegistry is the part of the patient directory that registration
// needs.
type PatientRegistry interface {
	Create(ctx context.Context, p *patient.Patient) error
	GetByDNI(ctx context.Context, dni string) (*patient.Patient, error)
	LinkUser(ctx context.Context, patientID, userID int64) error
}

type DoctorRegistry interface {
	LinkUser(ctx context.Context, doctorID, userID int64) error
}

type Service interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	Register(ctx context.Context, in RegisterInput) (*User, error)
	CreateUser(ctx context.Context, req directory.Requester, in CreateUserInput) (*User, error)
	ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) error
	ResetPassword(ctx context.Context, req directory.Requester, userID int64, password string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, req directory.Requester) ([]*User, error)
	ListRoles(ctx context.Context, req directory.Requester) ([]Role, error)
}

type ServiceConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type service struct {
	users       UserStore
	patients    PatientRegistry
	doctors     DoctorRegistry
	audit       audit.Service
	jwtSecret   []byte
	tokenExpiry time.Duration
	now         func() time.Time
}

func NewService(users UserStore, patients PatientRegistry, doctors DoctorRegistry, audit audit.Service, cfg ServiceConfig) Service {
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
	return &service{
		users:       users,
		patients:    patients,
		doctors:     doctors,
		audit:       audit,
		jwtSecret:   []byte(cfg.JWTSecret),
		tokenExpiry: cfg.TokenExpiry,
		now:         time.Now,
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.InvalidInput("correo and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if user == nil || !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		details, _ := json.Marshal(map[string]string{"correo": email})
		s.audit.LogEvent(ctx, &audit.Event{
			EventType: audit.EventLogin,
			Action:    "LOGIN",
			Resource:  "user",
			Status:    "failure",
			Details:   details,
		})
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.generateToken(user)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue token")
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventLogin,
		UserID:     user.ID,
		Action:     "LOGIN",
		Resource:   "user",
		ResourceID: strconv.FormatInt(user.ID, 10),
	})

	roleName := user.RoleName
	roleCode := user.RoleCode
	if roleCode == "" {
		roleName, roleCode = "Sin rol", "sin_rol"
	}
	return &LoginResponse{
		Access:    token,
		ExpiresAt: expiresAt,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		IsStaff:   user.IsStaff,
		RoleName:  roleName,
		RoleCode:  roleCode,
	}, nil
}

func (s *service) generateToken(user *User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenExpiry)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
			Subject:   strconv.FormatInt(user.ID, 10),
		},
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.RoleCode,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	return signed, expiresAt, err
}

// ValidateToken checks the signature and expiry, then that the user is
// still active.
func (s *service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInactiveUser
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return claims, nil
}

// Register creates a patient account and its patient profile. A profile
// with the same dni and no account is adopted instead of duplicated. When
// the profile step fails the new user is deleted again.
func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email, err := validateAccount(in.Email, in.Password, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	if in.BirthDate.IsZero() {
		return nil, apperr.InvalidInput("fecha_nacimiento is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash password")
	}
	user := &User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
		RoleCode:     string(directory.RolePatient),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.attachPatientProfile(ctx, user, in); err != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			return nil, apperr.Internal(errors.Join(err, delErr), "failed to roll back registration")
		}
		return nil, err
	}

	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		UserID:     user.ID,
		Action:     "REGISTER",
		Resource:   "user",
		ResourceID: strconv.FormatInt(user.ID, 10),
	})
	return user, nil
}

func (s *service) attachPatientProfile(ctx context.Context, user *User, in RegisterInput) error {
	dni := strings.TrimSpace(in.DNI)
	if dni == "" {
		dni = "TEMP_" + strconv.FormatInt(user.ID, 10)
	}

	existing, err := s.patients.GetByDNI(ctx, dni)
	switch {
	case err == nil:
		if existing.UserID != nil {
			return patient.ErrAlreadyLinked
		}
		return s.patients.LinkUser(ctx, existing.ID, user.ID)
	case !errors.Is(err, patient.ErrPatientNotFound):
		return err
	}

	userID := user.ID
	return s.patients.Create(ctx, &patient.Patient{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		DNI:       dni,
		BirthDate: in.BirthDate,
		Phone:     strings.TrimSpace(in.Phone),
		Address:   strings.TrimSpace(in.Address),
		UserID:    &userID,
	})
}

func (s *service) CreateUser(ctx context.Context, req directory.Requester, in CreateUserInput) (*User, error) {
	if !req.IsAdmin() {
		return nil, ErrAdminOnly
	}
	email, err := validateAccount(in.Email, in.Password, in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	if in.RoleCode == "" {
		in.RoleCode = string(directory.RolePatient)
	}
	role := directory.Role(in.RoleCode)
	if in.PatientID != nil && role != directory.RolePatient {
		return nil, apperr.InvalidInput("paciente_id requires the paciente role")
	}
	if in.DoctorID != nil && role != directory.RoleDoctor {
		return nil, apperr.InvalidInput("medico_id requires the medico role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash password")
	}
	user := &User{
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
		RoleCode:     in.RoleCode,
		IsStaff:      role == directory.RoleAdmin,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	var linkErr error
	switch {
	case in.PatientID != nil:
		linkErr = s.patients.LinkUser(ctx, *in.PatientID, user.ID)
	case in.DoctorID != nil:
		linkErr = s.doctors.LinkUser(ctx, *in.DoctorID, user.ID)
	}
	if linkErr != nil {
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			return nil, apperr.Internal(errors.Join(linkErr, delErr), "failed to roll back user creation")
		}
		return nil, linkErr
	}

	details, _ := json.Marshal(map[string]string{"rol": in.RoleCode})
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		Action:     "CREATE",
		Resource:   "user",
		ResourceID: strconv.FormatInt(user.ID, 10),
		Details:    details,
	})
	return user, nil
}

func (s *service) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) error {
	if in.Current == "" || in.New == "" || in.Confirm == "" {
		return apperr.InvalidInput("contrasena_actual, nueva_contrasena and confirmar_contrasena are required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Current)) != nil {
		return ErrWrongPassword
	}
	if in.New != in.Confirm {
		return ErrPasswordMismatch
	}
	if len(in.New) < minPasswordLength {
		return apperr.InvalidInputf("new password must be at least %d characters", minPasswordLength)
	}
	if err := s.setPassword(ctx, userID, in.New); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		Action:     "CHANGE_PASSWORD",
		Resource:   "user",
		ResourceID: strconv.FormatInt(userID, 10),
	})
	return nil
}

func (s *service) ResetPassword(ctx context.Context, req directory.Requester, userID int64, password string) (*User, error) {
	if !req.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if userID <= 0 || password == "" {
		return nil, apperr.InvalidInput("usuario_id and nueva_contrasena are required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.InvalidInputf("new password must be at least %d characters", minPasswordLength)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.setPassword(ctx, userID, password); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, &audit.Event{
		EventType:  audit.EventModify,
		Action:     "RESET_PASSWORD",
		Resource:   "user",
		ResourceID: strconv.FormatInt(userID, 10),
	})
	return user, nil
}

func (s *service) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal(err, "failed to hash password")
	}
	return s.users.UpdatePassword(ctx, userID, string(hash))
}

func (s *service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *service) ListUsers(ctx context.Context, req directory.Requester) ([]*User, error) {
	if !req.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.users.List(ctx)
}

func (s *service) ListRoles(ctx context.Context, req directory.Requester) ([]Role, error) {
	if !req.IsAdmin() {
		return nil, ErrAdminOnly
	}
	return s.users.ListRoles(ctx)
}
