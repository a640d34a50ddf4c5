package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/audit"
	"github.com/mesikahq/clinic-records/internal/directory"
)

const (
	userIDKey    = "user_id"
	requesterKey = "requester"
)

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

type RequesterResolver interface {
	Resolve(ctx context.Context, userID int64) (directory.Requester, error)
}

type Middleware struct {
	tokens    TokenValidator
	directory RequesterResolver
}

func NewMiddleware(tokens TokenValidator, directory RequesterResolver) *Middleware {
	return &Middleware{tokens: tokens, directory: directory}
}

// RequireAuth validates the bearer token and stores the resolved requester
// on the gin context.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			abort(c, apperr.Unauthenticated("missing bearer token"))
			return
		}

		claims, err := m.tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		req, err := m.directory.Resolve(c.Request.Context(), claims.UserID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				err = ErrInactiveUser
			}
			abort(c, err)
			return
		}

		c.Set(userIDKey, req.UserID)
		c.Set(requesterKey, req)
		c.Request = c.Request.WithContext(audit.WithUser(c.Request.Context(), req.UserID))
		c.Next()
	}
}

// RequireRoles must run after RequireAuth.
func (m *Middleware) RequireRoles(roles ...directory.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := RequesterFrom(c)
		if !ok {
			abort(c, apperr.Unauthenticated("authentication required"))
			return
		}
		if !req.HasRole(roles...) {
			abort(c, apperr.Forbidden("insufficient permissions"))
			return
		}
		c.Next()
	}
}

func RequesterFrom(c *gin.Context) (directory.Requester, bool) {
	v, ok := c.Get(requesterKey)
	if !ok {
		return directory.Requester{}, false
	}
	req, ok := v.(directory.Requester)
	return req, ok
}

// SetRequester is used by tests and alternative authenticators.
func SetRequester(c *gin.Context, req directory.Requester) {
	c.Set(userIDKey, req.UserID)
	c.Set(requesterKey, req)
}

func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func abort(c *gin.Context, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	if status == http.StatusInternalServerError {
		c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err)})
}
