package httpapi

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
)

// requireAdmin guards the admin routes with HTTP basic auth. The configured
// password is stored as a bcrypt hash; an empty hash disables the admin
// surface entirely.
func (s *Server) requireAdmin() echo.MiddlewareFunc {
	return middleware.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
		return s.verifyAdminCredentials(username, password), nil
	})
}

func (s *Server) verifyAdminCredentials(username, password string) bool {
	if s == nil || s.cfg == nil {
		return false
	}

	wantUser := strings.TrimSpace(s.cfg.AdminUser)
	hash := strings.TrimSpace(s.cfg.AdminPasswordHash)
	if wantUser == "" || hash == "" {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	return userOK && passOK
}
