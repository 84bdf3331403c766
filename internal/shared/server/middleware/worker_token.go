package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ivioje/globe-scholars/internal/shared/server/respond"
)

// WorkerToken guards internal converter callbacks with a shared secret.
// An empty expected token disables the routes entirely.
func WorkerToken(expected string) gin.HandlerFunc {
	expected = strings.TrimSpace(expected)
	return func(c *gin.Context) {
		if expected == "" {
			respond.Error(c, http.StatusNotFound, "not_found", "Not found.", nil)
			return
		}
		got := strings.TrimSpace(c.GetHeader("X-Worker-Token"))
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid worker token", nil)
			return
		}
		c.Next()
	}
}
