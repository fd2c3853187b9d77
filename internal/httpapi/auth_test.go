package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"horse.fit/jobsift/internal/config"
)

func testServer(t *testing.T, password string) *Server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := &config.Config{
		AdminUser:         "admin",
		AdminPasswordHash: string(hash),
	}
	return NewServer(nil, nil, cfg, zerolog.Nop(), Options{})
}

func TestVerifyAdminCredentials(t *testing.T) {
	t.Parallel()

	s := testServer(t, "hunter2")

	if !s.verifyAdminCredentials("admin", "hunter2") {
		t.Fatal("valid credentials rejected")
	}
	if s.verifyAdminCredentials("admin", "wrong") {
		t.Fatal("wrong password accepted")
	}
	if s.verifyAdminCredentials("root", "hunter2") {
		t.Fatal("wrong username accepted")
	}
}

func TestVerifyAdminCredentials_DisabledWithoutHash(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, &config.Config{AdminUser: "admin"}, zerolog.Nop(), Options{})
	if s.verifyAdminCredentials("admin", "") {
		t.Fatal("empty hash must disable admin access")
	}
}

func TestRequireAdmin_Middleware(t *testing.T) {
	t.Parallel()

	s := testServer(t, "hunter2")
	e := echo.New()
	handler := s.requireAdmin()(func(c echo.Context) error {
		return success(c, map[string]string{"reached": "yes"})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/process", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := handler(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("missing credentials: error = %v, want 401 HTTPError", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/process", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("valid credentials rejected: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "reached") {
		t.Fatalf("handler not reached: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()

	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit": 5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var body processRequest
	if err := decodeJSONBody(c, &body); err != nil {
		t.Fatalf("decode valid body: %v", err)
	}
	if body.Limit != 5 {
		t.Fatalf("limit = %d, want 5", body.Limit)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit": 5}{"again": true}`))
	c = e.NewContext(req, httptest.NewRecorder())
	if err := decodeJSONBody(c, &processRequest{}); err == nil {
		t.Fatal("trailing content must be rejected")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown_field": 1}`))
	c = e.NewContext(req, httptest.NewRecorder())
	if err := decodeJSONBody(c, &processRequest{}); err == nil {
		t.Fatal("unknown fields must be rejected")
	}
}

func TestParseIntParam(t *testing.T) {
	t.Parallel()

	if got := parseIntParam("", 25); got != 25 {
		t.Fatalf("empty param = %d, want fallback 25", got)
	}
	if got := parseIntParam("40", 25); got != 40 {
		t.Fatalf("numeric param = %d, want 40", got)
	}
	if got := parseIntParam("abc", 25); got != 25 {
		t.Fatalf("garbage param = %d, want fallback 25", got)
	}
}
