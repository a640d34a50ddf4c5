package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/clinic-records/internal/clinic"
	"github.com/mesikahq/clinic-records/internal/notification"
)

// Notifications

func (h *Handler) CreateNotification(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var n notification.Notification
	if !h.bindJSON(c, &n) {
		return
	}
	if err := h.svc.Notifications.Create(c.Request.Context(), req, &n); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *Handler) MyNotifications(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	list, err := h.svc.Notifications.ListForUser(ctx, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	unread, err := h.svc.Notifications.UnreadCount(ctx, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notificaciones": list, "no_leidas": unread})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	n, err := h.svc.Notifications.MarkRead(c.Request.Context(), req.UserID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// Clinic profile

func (h *Handler) ActiveClinic(c *gin.Context) {
	p, err := h.svc.Clinic.Active(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) SaveClinic(c *gin.Context) {
	req, ok := h.requester(c)
	if !ok {
		return
	}
	var patch clinic.Patch
	if !h.bindJSON(c, &patch) {
		return
	}
	p, err := h.svc.Clinic.Save(c.Request.Context(), req, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
