package doctor

import (
	"strings"

	"github.com/mesikahq/clinic-records/internal/apperr"
)

type Specialty struct {
	ID          int64  `json:"id" yaml:"-"`
	Name        string `json:"nombre" yaml:"nombre"`
	Description string `json:"descripcion" yaml:"descripcion"`
}

func (s *Specialty) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return apperr.InvalidInput("nombre is required")
	}
	if len(s.Name) > 100 {
		return apperr.InvalidInput("nombre must be at most 100 characters")
	}
	return nil
}

type Doctor struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"nombre"`
	LastName      string `json:"apellido"`
	DNI           string `json:"dni"`
	Phone         string `json:"telefono"`
	SpecialtyID   int64  `json:"especialidad"`
	SpecialtyName string `json:"especialidad_nombre,omitempty"`
	UserID        *int64 `json:"usuario"`
}

func (d *Doctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

func (d *Doctor) Validate() error {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.DNI = strings.TrimSpace(d.DNI)

	switch {
	case d.FirstName == "" || d.LastName == "":
		return apperr.InvalidInput("nombre and apellido are required")
	case d.DNI == "":
		return apperr.InvalidInput("dni is required")
	case len(d.DNI) > 20:
		return apperr.InvalidInput("dni must be at most 20 characters")
	case d.SpecialtyID <= 0:
		return apperr.InvalidInput("especialidad is required")
	}
	return nil
}
