package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	for _, h := range handlers {
		r.Use(h)
	}
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestBearerAuthRejectsMissingHeader(t *testing.T) {
	r := newTestRouter(bearerAuth("secret"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d want 401", w.Code)
	}
}

func TestBearerAuthRejectsWrongToken(t *testing.T) {
	r := newTestRouter(bearerAuth("secret"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d want 401", w.Code)
	}
}

func TestBearerAuthAcceptsCorrectToken(t *testing.T) {
	r := newTestRouter(bearerAuth("secret"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d want 200", w.Code)
	}
}

func TestSecurityHeadersSetOnEveryResponse(t *testing.T) {
	r := newTestRouter(securityHeaders)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	for header, want := range map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
	} {
		if got := w.Header().Get(header); got != want {
			t.Fatalf("header %s: got %q want %q", header, got, want)
		}
	}
}
