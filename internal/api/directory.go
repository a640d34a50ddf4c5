package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/patient"
)

// Patients

func (h *Handler) ListPatients(c *gin.Context) {
	patients, err := h.svc.Patients.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patients)
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var p patient.Patient
	if !h.bindJSON(c, &p) {
		return
	}
	p.ID = 0
	if err := h.svc.Patients.Create(c.Request.Context(), &p); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetPatient lets staff read any record and a patient only their own.
func (h *Handler) GetPatient(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if req.Role == directory.RolePatient && !req.OwnsPatient(id) {
		h.respondError(c, apperr.Forbidden("you can only view your own patient record"))
		return
	}
	p, err := h.svc.Patients.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	current, err := h.svc.Patients.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	// Fields missing from the body keep their stored values.
	p := *current
	if !h.bindJSON(c, &p) {
		return
	}
	p.ID, p.UserID = id, current.UserID
	if err := h.svc.Patients.Update(c.Request.Context(), &p); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Patients.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SearchPatients(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []*patient.Patient{})
		return
	}
	patients, err := h.svc.Patients.Search(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, patients)
}

// Doctors

func (h *Handler) ListDoctors(c *gin.Context) {
	specialtyID, ok := h.queryID(c, "especialidad")
	if !ok {
		return
	}
	doctors, err := h.svc.Doctors.List(c.Request.Context(), specialtyID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}

type doctorOption struct {
	ID        int64             `json:"id"`
	Name      string            `json:"nombre_completo"`
	Specialty *doctor.Specialty `json:"especialidad"`
}

// DoctorsForPatients is the booking picker: every doctor with the details of
// their specialty.
func (h *Handler) DoctorsForPatients(c *gin.Context) {
	ctx := c.Request.Context()
	doctors, err := h.svc.Doctors.List(ctx, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	specialties, err := h.svc.Doctors.ListSpecialties(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	byID := make(map[int64]*doctor.Specialty, len(specialties))
	for _, s := range specialties {
		byID[s.ID] = s
	}

	options := make([]doctorOption, 0, len(doctors))
	for _, d := range doctors {
		options = append(options, doctorOption{
			ID:        d.ID,
			Name:      d.FullName(),
			Specialty: byID[d.SpecialtyID],
		})
	}
	c.JSON(http.StatusOK, options)
}

func (h *Handler) CreateDoctor(c *gin.Context) {
	var d doctor.Doctor
	if !h.bindJSON(c, &d) {
		return
	}
	d.ID = 0
	if err := h.svc.Doctors.Create(c.Request.Context(), &d); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.svc.Doctors.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	current, err := h.svc.Doctors.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	d := *current
	if !h.bindJSON(c, &d) {
		return
	}
	d.ID, d.UserID = id, current.UserID
	if err := h.svc.Doctors.Update(c.Request.Context(), &d); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Doctors.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SearchDoctors(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusOK, []*doctor.Doctor{})
		return
	}
	doctors, err := h.svc.Doctors.Search(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doctors)
}

// Specialties

func (h *Handler) ListSpecialties(c *gin.Context) {
	specialties, err := h.svc.Doctors.ListSpecialties(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, specialties)
}

func (h *Handler) CreateSpecialty(c *gin.Context) {
	var s doctor.Specialty
	if !h.bindJSON(c, &s) {
		return
	}
	s.ID = 0
	if err := h.svc.Doctors.CreateSpecialty(c.Request.Context(), &s); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateSpecialty(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var s doctor.Specialty
	if !h.bindJSON(c, &s) {
		return
	}
	s.ID = id
	if err := h.svc.Doctors.UpdateSpecialty(c.Request.Context(), &s); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSpecialty(c *gin.Context) {
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Doctors.DeleteSpecialty(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
