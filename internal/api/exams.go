package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesikahq/clinic-records/internal/exam"
	"github.com/mesikahq/clinic-records/internal/notification"
)

func (h *Handler) ListExamTypes(c *gin.Context) {
	types, err := h.svc.Exams.ListTypes(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (h *Handler) CreateExamType(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var t exam.Type
	if !h.bindJSON(c, &t) {
		return
	}
	t.ID = 0
	if err := h.svc.Exams.CreateType(c.Request.Context(), req, &t); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateExamType(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var t exam.Type
	if !h.bindJSON(c, &t) {
		return
	}
	t.ID = id
	if err := h.svc.Exams.UpdateType(c.Request.Context(), req, &t); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteExamType(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Exams.DeleteType(c.Request.Context(), req, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListExams(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	patientID, ok := h.queryID(c, "paciente")
	if !ok {
		return
	}
	exams, err := h.svc.Exams.List(c.Request.Context(), req, patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exams)
}

func (h *Handler) CreateExam(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var e exam.Exam
	if !h.bindJSON(c, &e) {
		return
	}
	e.ID = 0
	if err := h.svc.Exams.Create(c.Request.Context(), req, &e); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) CompleteExam(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	var in exam.Completion
	if !h.bindJSON(c, &in) {
		return
	}
	e, err := h.svc.Exams.Complete(c.Request.Context(), req, id, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.notifyExamResult(c.Request.Context(), e)
	c.JSON(http.StatusOK, e)
}

func (h *Handler) notifyExamResult(ctx context.Context, e *exam.Exam) {
	if h.svc.Patients == nil {
		return
	}
	p, err := h.svc.Patients.Get(ctx, e.PatientID)
	if err != nil {
		h.logger.Warn("exam result notification skipped", zap.Error(err), zap.Int64("exam_id", e.ID))
		return
	}
	if p.UserID == nil {
		return
	}
	message := "Su examen ya tiene resultado"
	if e.TypeName != "" {
		message = fmt.Sprintf("Su examen de %s ya tiene resultado", e.TypeName)
	}
	h.sendNotification(ctx, *p.UserID, notification.TypeExam, "Resultado de examen disponible", message,
		map[string]interface{}{"examen_id": e.ID})
}
