package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/response"
)

// RequireProctorKey guards the proctor routes with a shared key sent in
// X-Proctor-Key, or ?key= for EventSource clients.
func RequireProctorKey(key string) gin.HandlerFunc {
	want := []byte(key)

	return func(c *gin.Context) {
		got := c.GetHeader("X-Proctor-Key")
		if got == "" {
			got = c.Query("key")
		}
		if got == "" {
			response.AbortFail(c, response.Status(response.ErrTicketRequired), response.ErrTicketRequired)
			return
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			response.AbortFail(c, response.Status(response.ErrTicketInvalid), response.ErrTicketInvalid)
			return
		}
		c.Next()
	}
}
