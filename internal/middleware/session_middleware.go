package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/vendasb2b/cart-engine/internal/errors"
)

// CartSessionHeader identifies the buyer whose cart a request operates on.
const CartSessionHeader = "X-Cart-Session"

const sessionContextKey = "cart_session"

// RequireCartSession rejects requests without a cart session header and stores
// the session id in the context.
func RequireCartSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := strings.TrimSpace(c.GetHeader(CartSessionHeader))
		if session == "" {
			GetLoggerFromContext(c).Warn("Request without cart session")
			apperrors.BadRequest(c, apperrors.SessionRequired, "Cabeçalho X-Cart-Session é obrigatório")
			return
		}
		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// GetCartSession returns the session id stored by RequireCartSession.
func GetCartSession(c *gin.Context) (string, bool) {
	session := c.GetString(sessionContextKey)
	return session, session != ""
}
