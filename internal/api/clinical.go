package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/clinical"
	"github.com/mesikahq/clinic-records/internal/directory"
)

// ClinicalHistory returns the nested history of a patient. Any authenticated
// user may call it, except that a patient is limited to their own record.
func (h *Handler) ClinicalHistory(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	patientID, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if req.Role == directory.RolePatient && !req.OwnsPatient(patientID) {
		h.respondError(c, apperr.Forbidden("you can only view your own clinical history"))
		return
	}
	view, err := h.svc.History.GetClinicalHistory(c.Request.Context(), patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Consultations

func (h *Handler) ListConsultations(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var f clinical.ConsultationFilter
	if f.PatientID, ok = h.queryID(c, "paciente"); !ok {
		return
	}
	if f.DoctorID, ok = h.queryID(c, "medico"); !ok {
		return
	}
	list, err := h.svc.Clinical.ListConsultations(c.Request.Context(), req, f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateConsultation(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var in clinical.Consultation
	if !h.bindJSON(c, &in) {
		return
	}
	in.ID = 0
	if err := h.svc.Clinical.CreateConsultation(c.Request.Context(), req, &in); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, in)
}

func (h *Handler) GetConsultation(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	consultation, err := h.svc.Clinical.GetConsultation(c.Request.Context(), req, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, consultation)
}

func (h *Handler) DeleteConsultation(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Clinical.DeleteConsultation(c.Request.Context(), req, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Diagnoses

func (h *Handler) ListDiagnoses(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	list, err := h.svc.Clinical.ListDiagnoses(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateDiagnosis(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var d clinical.Diagnosis
	if !h.bindJSON(c, &d) {
		return
	}
	d.ID = 0
	if err := h.svc.Clinical.CreateDiagnosis(c.Request.Context(), req, &d); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) DiagnosesByConsultation(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Clinical.ListDiagnosesByConsultation(c.Request.Context(), req, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) DiagnosesByPatient(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Clinical.ListDiagnosesByPatient(c.Request.Context(), req, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) DeleteDiagnosis(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Clinical.DeleteDiagnosis(c.Request.Context(), req, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Treatments

func (h *Handler) ListTreatments(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	diagnosisID, ok := h.queryID(c, "diagnostico")
	if !ok {
		return
	}
	list, err := h.svc.Clinical.ListTreatments(c.Request.Context(), req, diagnosisID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateTreatment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var t clinical.Treatment
	if !h.bindJSON(c, &t) {
		return
	}
	t.ID = 0
	if err := h.svc.Clinical.CreateTreatment(c.Request.Context(), req, &t); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) DeleteTreatment(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	id, ok := h.paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Clinical.DeleteTreatment(c.Request.Context(), req, id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Medical background

func (h *Handler) GetBackground(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	patientID, ok := h.paramID(c, "patientId")
	if !ok {
		return
	}
	b, err := h.svc.Clinical.GetBackground(c.Request.Context(), req, patientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) SaveBackground(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	patientID, ok := h.paramID(c, "patientId")
	if !ok {
		return
	}
	var b clinical.MedicalBackground
	if !h.bindJSON(c, &b) {
		return
	}
	b.PatientID = patientID
	if err := h.svc.Clinical.SaveBackground(c.Request.Context(), req, &b); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
