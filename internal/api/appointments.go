package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/appointment"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/events"
	"github.com/mesikahq/clinic-records/internal/notification"
)

type appointmentRequest struct {
	PatientID  *int64 `json:"paciente"`
	DoctorID   int64  `json:"medico"`
	ProposedAt string `json:"fecha_hora_propuesta"`
	Reason     string `json:"motivo"`
}

func (h *Handler) decodeAppointment(c *gin.Context) (appointment.CreateInput, bool) {
	var body appointmentRequest
	if !h.bindJSON(c, &body) {
		return appointment.CreateInput{}, false
	}
	if body.DoctorID <= 0 || strings.TrimSpace(body.ProposedAt) == "" {
		h.respondError(c, apperr.InvalidInput("medico and fecha_hora_propuesta are required"))
		return appointment.CreateInput{}, false
	}
	at, err := h.parseDateTime(body.ProposedAt)
	if err != nil {
		h.respondError(c, apperr.InvalidInput("invalid fecha_hora_propuesta: "+err.Error()))
		return appointment.CreateInput{}, false
	}
	return appointment.CreateInput{
		PatientID:  body.PatientID,
		DoctorID:   body.DoctorID,
		ProposedAt: at,
		Reason:     body.Reason,
	}, true
}

// CreateAppointment books through whichever rules the caller's role
// allows.
func (h *Handler) CreateAppointment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	in, ok := h.decodeAppointment(c)
	if !ok {
		return
	}
	h.createAppointment(c, req, in)
}

// CreatePatientAppointment always books for the caller's own patient
// profile.
func (h *Handler) CreatePatientAppointment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	if req.PatientID == nil {
		h.respondError(c, apperr.Forbidden("only patients can request appointments"))
		return
	}
	in, ok := h.decodeAppointment(c)
	if !ok {
		return
	}
	in.PatientID = req.PatientID
	h.createAppointment(c, req, in)
}

func (h *Handler) CreateAdminAppointment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	if !req.IsAdmin() {
		h.respondError(c, appointment.ErrAdminOnly)
		return
	}
	in, ok := h.decodeAppointment(c)
	if !ok {
		return
	}
	if in.PatientID == nil {
		h.respondError(c, apperr.InvalidInput("paciente is required"))
		return
	}
	h.createAppointment(c, req, in)
}

func (h *Handler) createAppointment(c *gin.Context, req directory.Requester, in appointment.CreateInput) {
	a, err := h.svc.Appointments.Create(c.Request.Context(), req, in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publishAppointment(c.Request.Context(), events.AppointmentCreated, req, a)
	if req.Role == directory.RolePatient && a.Doctor != nil && a.Doctor.UserID != nil {
		h.notify(c.Request.Context(), *a.Doctor.UserID, "Nueva cita solicitada",
			fmt.Sprintf("%s solicitó una cita para el %s", patientName(a), formatWhen(a)), a)
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) rangeFilter(c *gin.Context) (appointment.Filter, bool) {
	var f appointment.Filter
	var ok bool
	if f.DoctorID, ok = h.queryID(c, "medico"); !ok {
		return f, false
	}
	if f.From, ok = h.queryTime(c, "start"); !ok {
		return f, false
	}
	if f.To, ok = h.queryTime(c, "end"); !ok {
		return f, false
	}
	return f, true
}

// ListAppointments returns appointment records scoped to the caller's role.
func (h *Handler) ListAppointments(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	f, ok := h.rangeFilter(c)
	if !ok {
		return
	}
	list, err := h.svc.Appointments.List(c.Request.Context(), req, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetAppointment returns one record if the caller may see it.
func (h *Handler) GetAppointment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	a, err := h.svc.Appointments.Get(c.Request.Context(), req, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DoctorCalendar(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	f, ok := h.rangeFilter(c)
	if !ok {
		return
	}
	list, err := h.svc.Appointments.ListForDoctor(c.Request.Context(), req, f)
	h.respondCalendar(c, list, err)
}

func (h *Handler) PatientCalendar(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	list, err := h.svc.Appointments.ListForPatient(c.Request.Context(), req)
	h.respondCalendar(c, list, err)
}

func (h *Handler) AllCalendar(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	f, ok := h.rangeFilter(c)
	if !ok {
		return
	}
	list, err := h.svc.Appointments.ListAll(c.Request.Context(), req, f)
	h.respondCalendar(c, list, err)
}

func (h *Handler) respondCalendar(c *gin.Context, list []*appointment.Appointment, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, appointment.CalendarEvents(list, h.slot))
}

type appointmentPatch struct {
	PatientID  *int64  `json:"paciente"`
	DoctorID   *int64  `json:"medico"`
	ProposedAt *string `json:"fecha_hora_propuesta"`
	Reason     *string `json:"motivo"`
	State      *string `json:"estado"`
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var body appointmentPatch
	if !h.bindJSON(c, &body) {
		return
	}

	p := appointment.Patch{
		PatientID: body.PatientID,
		DoctorID:  body.DoctorID,
		Reason:    body.Reason,
	}
	if body.ProposedAt != nil {
		at, err := h.parseDateTime(*body.ProposedAt)
		if err != nil {
			h.respondError(c, apperr.InvalidInput("invalid fecha_hora_propuesta: "+err.Error()))
			return
		}
		p.ProposedAt = &at
	}
	if body.State != nil {
		state, err := appointment.ParseState(*body.State)
		if err != nil {
			h.respondError(c, err)
			return
		}
		p.State = &state
	}

	a, err := h.svc.Appointments.Update(c.Request.Context(), req, id, p)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publishAppointment(c.Request.Context(), events.AppointmentUpdated, req, a)
	if (req.IsAdmin() || req.IsDoctor(a.DoctorID)) && a.Patient != nil && a.Patient.UserID != nil {
		h.notify(c.Request.Context(), *a.Patient.UserID, "Cita actualizada",
			fmt.Sprintf("Su cita del %s está %s", formatWhen(a), a.State), a)
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Appointments.Delete(c.Request.Context(), req, id); err != nil {
		h.respondError(c, err)
		return
	}

	h.publishAppointment(c.Request.Context(), events.AppointmentDeleted, req, &appointment.Appointment{ID: id})
	c.JSON(http.StatusOK, gin.H{"message": "Cita eliminada correctamente"})
}

// publishAppointment never fails the request; a lost event is only logged.
func (h *Handler) publishAppointment(ctx context.Context, kind string, req directory.Requester, a *appointment.Appointment) {
	e := events.AppointmentEvent{
		Type:          kind,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		State:         string(a.State),
		ProposedAt:    a.ProposedAt,
		ActorUserID:   req.UserID,
		OccurredAt:    h.now().UTC(),
	}
	if err := h.svc.Events.Publish(ctx, e.Key(), e); err != nil {
		h.logger.Warn("appointment event not published",
			zap.Error(err),
			zap.String("type", kind),
			zap.Int64("appointment_id", a.ID),
		)
	}
}

func (h *Handler) notify(ctx context.Context, userID int64, title, message string, a *appointment.Appointment) {
	metadata := map[string]interface{}{"cita_id": a.ID, "estado": string(a.State)}
	h.sendNotification(ctx, userID, notification.TypeAppointment, title, message, metadata)
}

// sendNotification is best-effort; a disabled inbox is not worth a log line.
func (h *Handler) sendNotification(ctx context.Context, userID int64, kind, title, message string, metadata map[string]interface{}) {
	err := h.svc.Notifications.Notify(ctx, userID, kind, title, message, metadata)
	if err != nil && !errors.Is(err, notification.ErrDisabled) {
		h.logger.Warn("notification not sent",
			zap.Error(err),
			zap.String("type", kind),
			zap.Int64("user_id", userID),
		)
	}
}

func patientName(a *appointment.Appointment) string {
	if a.Patient != nil {
		return a.Patient.FullName()
	}
	return "Un paciente"
}

func formatWhen(a *appointment.Appointment) string {
	return a.ProposedAt.Format("02/01/2006 15:04")
}
