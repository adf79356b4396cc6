package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const contextUserKey = "dashboard_user"

// BasicAuthRequired gates the dashboard API behind one user whose password is
// stored as a bcrypt hash. With no hash configured every request is refused.
func (s *Server) BasicAuthRequired() gin.HandlerFunc {
	wantUser := strings.TrimSpace(s.cfg.Dashboard.User)
	hash := []byte(strings.TrimSpace(s.cfg.Dashboard.PasswordHash))

	return func(c *gin.Context) {
		user, password, ok := c.Request.BasicAuth()
		if !ok || len(hash) == 0 {
			c.Header("WWW-Authenticate", `Basic realm="ledgerbridge"`)
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
		passOK := bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
		if !userOK || !passOK {
			c.Header("WWW-Authenticate", `Basic realm="ledgerbridge"`)
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}
