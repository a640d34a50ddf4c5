// Package api is the REST boundary: gin handlers that decode requests,
// resolve the caller and map service errors onto HTTP responses.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/appointment"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/auth"
	"github.com/mesikahq/clinic-records/internal/clinic"
	"github.com/mesikahq/clinic-records/internal/clinical"
	"github.com/mesikahq/clinic-records/internal/dates"
	"github.com/mesikahq/clinic-records/internal/directory"
	"github.com/mesikahq/clinic-records/internal/doctor"
	"github.com/mesikahq/clinic-records/internal/events"
	"github.com/mesikahq/clinic-records/internal/exam"
	"github.com/mesikahq/clinic-records/internal/history"
	"github.com/mesikahq/clinic-records/internal/notification"
	"github.com/mesikahq/clinic-records/internal/patient"
)

// Services groups every collaborator the handlers call.
type Services struct {
	Auth          auth.Service
	Patients      patient.Service
	Doctors       doctor.Service
	Appointments  appointment.Service
	History       history.Service
	Clinical      clinical.Service
	Exams         exam.Service
	Clinic        clinic.Service
	Notifications notification.Service
	Audit         audit.Service
	Events        events.Publisher
}

type Handler struct {
	svc      Services
	logger   *zap.Logger
	slot     time.Duration
	location *time.Location
	now      func() time.Time
}

type HandlerConfig struct {
	// SlotLength is the calendar event length for one appointment.
	SlotLength time.Duration
	// Location is used for date-times sent without a zone.
	Location *time.Location
}

func NewHandler(svc Services, logger *zap.Logger, cfg HandlerConfig) *Handler {
	if cfg.SlotLength <= 0 {
		cfg.SlotLength = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if svc.Events == nil {
		svc.Events = events.Nop{}
	}
	if svc.Notifications == nil {
		svc.Notifications = notification.Disabled()
	}
	return &Handler{
		svc:      svc,
		logger:   logger,
		slot:     cfg.SlotLength,
		location: cfg.Location,
		now:      time.Now,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// respondError writes {"error": msg} with the status mapped from the error
// kind. Only server-side failures are logged.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Error("request failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
		)
		c.Error(err)
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": apperr.Message(err)})
}

// bindJSON decodes the body into v. An empty body leaves v untouched.
func (h *Handler) bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(c, apperr.InvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *Handler) requester(c *gin.Context) (directory.Requester, bool) {
	req, ok := auth.RequesterFrom(c)
	if !ok {
		h.respondError(c, apperr.Unauthenticated("authentication required"))
	}
	return req, ok
}

func (h *Handler) paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, apperr.InvalidInputf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// queryID reads an optional numeric query parameter.
func (h *Handler) queryID(c *gin.Context, name string) (*int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.respondError(c, apperr.InvalidInputf("invalid %s", name))
		return nil, false
	}
	return &id, true
}

func (h *Handler) queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := h.parseDateTime(raw)
	if err != nil {
		h.respondError(c, apperr.InvalidInputf("invalid %s: %v", name, err))
		return nil, false
	}
	return &t, true
}

func (h *Handler) parseDateTime(s string) (time.Time, error) {
	return dates.ParseDateTime(s, h.location)
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}
