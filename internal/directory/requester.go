// Package directory resolves an authenticated user into the role and the
// patient or doctor profiles linked to that account.
package directory

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "medico"
	RolePatient Role = "paciente"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Requester is the identity every core operation receives explicitly.
type Requester struct {
	UserID    int64
	Role      Role
	PatientID *int64
	DoctorID  *int64
}

func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}

// OwnsPatient reports whether the requester's linked patient profile is id.
func (r Requester) OwnsPatient(id int64) bool {
	return r.PatientID != nil && *r.PatientID == id
}

// IsDoctor reports whether the requester's linked doctor profile is id.
func (r Requester) IsDoctor(id int64) bool {
	return r.DoctorID != nil && *r.DoctorID == id
}

func (r Requester) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if r.Role == role {
			return true
		}
	}
	return false
}
