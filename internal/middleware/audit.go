package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mesikahq/clinic-records/internal/audit"
)

const auditTimeout = 5 * time.Second

// Audit records every authenticated API call once the handler is done.
// Events are sent from a goroutine so the audit index never slows the
// response down.
func Audit(auditor audit.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		info, ok := audit.RequestInfoFrom(c.Request.Context())
		if !ok || info.UserID == 0 {
			return
		}

		status := "success"
		if c.Writer.Status() >= http.StatusBadRequest {
			status = "failure"
		}
		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"status": c.Writer.Status(),
		})
		event := &audit.Event{
			EventType:  eventTypeFor(c.Request.Method),
			Action:     c.Request.Method,
			Resource:   resourceFor(c),
			ResourceID: c.Param("id"),
			Status:     status,
			Details:    details,
		}

		go func() {
			ctx, cancel := context.WithTimeout(audit.WithRequestInfo(context.Background(), info), auditTimeout)
			defer cancel()
			if err := auditor.LogEvent(ctx, event); err != nil {
				logger.Warn("audit event dropped", zap.Error(err), zap.String("request_id", info.RequestID))
			}
		}()
	}
}

func eventTypeFor(method string) audit.EventType {
	switch method {
	case http.MethodGet, http.MethodHead:
		return audit.EventAccess
	case http.MethodDelete:
		return audit.EventDelete
	default:
		return audit.EventModify
	}
}

// resourceFor names the route template, e.g. "citas/:id".
func resourceFor(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	path = strings.TrimPrefix(path, "/api/")
	return strings.Trim(path, "/")
}
