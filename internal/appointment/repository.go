package appointment

import (
	"context"
	"time"

	"github.com/mesikahq/clinic-records/internal/apperr"
)

var ErrAppointmentNotFound = apperr.NotFound("appointment not found")

// Repository persists appointments. Get and List attach the patient and
// doctor details.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, q Query) ([]*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id int64) error
	// HasOverlap reports a non-cancelled appointment of the doctor strictly
	// inside (from, to), ignoring excludeID.
	HasOverlap(ctx context.Context, doctorID int64, from, to time.Time, excludeID int64) (bool, error)
}
