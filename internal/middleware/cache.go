package middleware

import (
	"github.com/gin-gonic/gin"
)

// Common Cache-Control directives.
const (
	CacheNoStore = "no-store"
	CacheStatic  = "public, max-age=300"
)

// CacheControl sets the Cache-Control header on every response of a group.
// Ticketed quiz responses use CacheNoStore since they carry a student's
// answers.
func CacheControl(directive string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", directive)
		c.Next()
	}
}
