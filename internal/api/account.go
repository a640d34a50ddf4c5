package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/auth"
)

type loginRequest struct {
	Email    string `json:"correo"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.svc.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Register(c *gin.Context) {
	var in auth.RegisterInput
	if !h.bindJSON(c, &in) {
		return
	}
	user, err := h.svc.Auth.Register(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var in auth.ChangePasswordInput
	if !h.bindJSON(c, &in) {
		return
	}
	if err := h.svc.Auth.ChangePassword(c.Request.Context(), auth.GetUserID(c), in); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contraseña actualizada correctamente"})
}

type profileResponse struct {
	*auth.User
	PatientID *int64 `json:"paciente_id"`
	DoctorID  *int64 `json:"medico_id"`
}

func (h *Handler) Profile(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	user, err := h.svc.Auth.GetUser(c.Request.Context(), req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profileResponse{User: user, PatientID: req.PatientID, DoctorID: req.DoctorID})
}

type resetPasswordRequest struct {
	UserID   int64  `json:"usuario_id"`
	Password string `json:"nueva_contrasena"`
}

func (h *Handler) ResetPassword(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var body resetPasswordRequest
	if !h.bindJSON(c, &body) {
		return
	}
	user, err := h.svc.Auth.ResetPassword(c.Request.Context(), req, body.UserID, body.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contraseña restablecida para " + user.Email})
}

func (h *Handler) ListUsers(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	users, err := h.svc.Auth.ListUsers(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) CreateUser(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var in auth.CreateUserInput
	if !h.bindJSON(c, &in) {
		return
	}
	user, err := h.svc.Auth.CreateUser(c.Request.Context(), req, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ListRoles(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	roles, err := h.svc.Auth.ListRoles(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

const maxAuditPage = 500

// AuditLog searches the audit index. Supported filters are usuario,
// tipo, recurso and estado; paging uses from and size.
func (h *Handler) AuditLog(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	if !req.IsAdmin() {
		h.respondError(c, apperr.Forbidden("only administrators can read the audit log"))
		return
	}
	userID, ok := h.queryID(c, "usuario")
	if !ok {
		return
	}

	filters := map[string]interface{}{}
	if userID != nil {
		filters["user_id"] = *userID
	}
	for param, field := range map[string]string{"tipo": "event_type", "recurso": "resource", "estado": "status"} {
		if v := c.Query(param); v != "" {
			filters[field] = v
		}
	}

	size := queryInt(c, "size", 50)
	if size == 0 || size > maxAuditPage {
		size = maxAuditPage
	}
	entries, err := h.svc.Audit.QueryEvents(c.Request.Context(), filters, queryInt(c, "from", 0), size)
	if err != nil {
		h.respondError(c, apperr.Internal(err, "failed to query audit log"))
		return
	}
	if entries == nil {
		entries = []audit.Event{}
	}
	c.JSON(http.StatusOK, entries)
}
