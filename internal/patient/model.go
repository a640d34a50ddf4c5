package patient

import (
	"strings"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/dates"
)

type Patient struct {
	ID        int64      `json:"id"`
	FirstName string     `json:"nombre"`
	LastName  string     `json:"apellido"`
	DNI       string     `json:"dni"`
	BirthDate dates.Date `json:"fecha_nacimiento"`
	Phone     string     `json:"telefono"`
	Address   string     `json:"direccion"`
	UserID    *int64     `json:"usuario"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Patient) Validate() error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.DNI = strings.TrimSpace(p.DNI)

	switch {
	case p.FirstName == "" || p.LastName == "":
		return apperr.InvalidInput("nombre and apellido are required")
	case p.DNI == "":
		return apperr.InvalidInput("dni is required")
	case len(p.DNI) > 20:
		return apperr.InvalidInput("dni must be at most 20 characters")
	case p.BirthDate.IsZero():
		return apperr.InvalidInput("fecha_nacimiento is required")
	case p.BirthDate.After(dates.Today().Time):
		return apperr.InvalidInput("fecha_nacimiento cannot be in the future")
	}
	return nil
}
