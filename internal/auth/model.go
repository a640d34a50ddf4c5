package auth

import (
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/dates"
)

const minPasswordLength = 6

type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	Email  string `json:"correo"`
	Role   string `json:"rol"`
}

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
	Code string `json:"codigo"`
}

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"correo"`
	FirstName    string     `json:"nombre"`
	LastName     string     `json:"apellido"`
	PasswordHash string     `json:"-"`
	RoleCode     string     `json:"rol_codigo"`
	RoleName     string     `json:"rol"`
	IsStaff      bool       `json:"is_staff"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login"`
	CreatedAt    time.Time  `json:"fecha_creacion"`
}

type LoginResponse struct {
	Access    string    `json:"access"`
	ExpiresAt time.Time `json:"expira"`
	FirstName string    `json:"nombre"`
	LastName  string    `json:"apellido"`
	Email     string    `json:"correo"`
	IsStaff   bool      `json:"is_staff"`
	RoleName  string    `json:"rol"`
	RoleCode  string    `json:"rol_codigo"`
}

type RegisterInput struct {
	Email     string     `json:"correo"`
	Password  string     `json:"password"`
	FirstName string     `json:"nombre"`
	LastName  string     `json:"apellido"`
	DNI       string     `json:"dni"`
	BirthDate dates.Date `json:"fecha_nacimiento"`
	Phone     string     `json:"telefono"`
	Address   string     `json:"direccion"`
}

// CreateUserInput is the admin form. PatientID or DoctorID link an existing
// profile to the new account when the role matches.
type CreateUserInput struct {
	Email     string `json:"correo"`
	Password  string `json:"password"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	RoleCode  string `json:"rol_codigo"`
	PatientID *int64 `json:"paciente_id"`
	DoctorID  *int64 `json:"medico_id"`
}

type ChangePasswordInput struct {
	Current string `json:"contrasena_actual"`
	New     string `json:"nueva_contrasena"`
	Confirm string `json:"confirmar_contrasena"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.InvalidInput("correo is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.InvalidInput("correo is not a valid email address")
	}
	return email, nil
}

func validateAccount(email, password, firstName, lastName string) (string, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" || password == "" {
		return "", apperr.InvalidInput("correo, nombre, apellido and password are required")
	}
	if len(password) < minPasswordLength {
		return "", apperr.InvalidInputf("password must be at least %d characters", minPasswordLength)
	}
	return normalizeEmail(email)
}
