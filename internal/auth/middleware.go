package auth

import (
	"net/http"

	"github.com/adrian-cabangis/taskboard/internal/authz"

	"github.com/gin-gonic/gin"
)

const sessionCookieName = "session_id"

const contextKeyIdentity = "identity"

// IdentityFromContext returns the caller identity set by RequireSession.
// The zero Identity if not set.
func IdentityFromContext(c *gin.Context) authz.Identity {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return authz.Identity{}
	}
	ident, ok := v.(authz.Identity)
	if !ok {
		return authz.Identity{}
	}
	return ident
}

// SetIdentity puts an identity on the context directly. Test hook.
func SetIdentity(c *gin.Context, ident authz.Identity) {
	c.Set(contextKeyIdentity, ident)
}

// RequireSession returns a middleware that checks for a valid session
// cookie and sets the caller identity in context. If missing or
// invalid, responds with 401.
func RequireSession(sessions *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(sessionCookieName)
		if err != nil || sessionID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		ident, ok := sessions.Get(c.Request.Context(), sessionID)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Set(contextKeyIdentity, ident)
		c.Next()
	}
}
