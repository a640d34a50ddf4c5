package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesikahq/clinic-records/internal/audit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AuditContext())
	var seen string
	r.GET("/", func(c *gin.Context) {
		info, _ := audit.RequestInfoFrom(c.Request.Context())
		seen = info.RequestID
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/", map[string]string{"X-Request-ID": "abc-123"})
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" || seen != "abc-123" {
		t.Errorf("request id header = %q, context = %q", got, seen)
	}

	w = serve(r, http.MethodGet, "/", nil)
	if got := w.Header().Get("X-Request-ID"); got == "" || got != seen {
		t.Errorf("generated request id = %q, context = %q", got, seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://app.example.com/"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/", map[string]string{"Origin": "https://app.example.com"})
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow origin = %q", got)
	}

	w = serve(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(rate.Every(time.Hour), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, http.MethodGet, "/", nil).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v", codes)
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	if w := serve(r, http.MethodGet, "/", nil); w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d", w.Code)
	}
}

type chanAudit chan *audit.Event

func (ch chanAudit) LogEvent(ctx context.Context, e *audit.Event) error {
	if info, ok := audit.RequestInfoFrom(ctx); ok {
		e.UserID = info.UserID
		e.RequestID = info.RequestID
	}
	ch <- e
	return nil
}

func (ch chanAudit) QueryEvents(ctx context.Context, f map[string]interface{}, from, size int) ([]audit.Event, error) {
	return nil, nil
}

func TestAudit(t *testing.T) {
	events := make(chanAudit, 4)
	r := gin.New()
	r.Use(RequestID(), AuditContext(), Audit(events, zap.NewNop()))
	authed := func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithUser(c.Request.Context(), 42))
		c.Next()
	}
	r.DELETE("/api/citas/:id/", authed, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/api/especialidades/", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/api/especialidades/", nil)
	serve(r, http.MethodDelete, "/api/citas/9/", map[string]string{"X-Request-ID": "req-1"})

	select {
	case e := <-events:
		if e.UserID != 42 || e.EventType != audit.EventDelete || e.ResourceID != "9" || e.Resource != "citas/:id" {
			t.Errorf("event = %+v", e)
		}
		if e.RequestID != "req-1" || e.Status != "success" {
			t.Errorf("request id = %q, status = %q", e.RequestID, e.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no audit event")
	}

	select {
	case e := <-events:
		t.Errorf("anonymous request audited: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
