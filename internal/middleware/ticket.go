package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for ticket claims.
	ContextKeyClaims = "claims"
)

// TicketValidator verifies session tickets.
type TicketValidator interface {
	Validate(ticket string) (*service.Claims, error)
}

// RequireTicket validates the session ticket from the Authorization header.
// WebSocket upgrades and sendBeacon posts cannot set headers, so ?ticket=
// is accepted as a fallback.
func RequireTicket(tickets TicketValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractTicket(c)
		if raw == "" {
			response.AbortFail(c, response.Status(response.ErrTicketRequired), response.ErrTicketRequired)
			return
		}

		claims, err := tickets.Validate(raw)
		if err != nil {
			response.AbortFail(c, response.Status(response.ErrTicketInvalid), response.ErrTicketInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the ticket claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractTicket(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("ticket")
}
