package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/identity"
	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Auth returns a middleware that authenticates control-plane callers.
// The bearer credential is resolved through the authenticator and the
// caller principal is attached to the request context, where handlers
// pick it up via identity.PrincipalFromContext. The response never
// distinguishes a bad credential from a missing mapping.
func Auth(authenticator identity.Authenticator, logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		credential, ok := ExtractBearerToken(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing bearer credentials",
			})
			return
		}

		principal, err := authenticator.Authenticate(c.Request.Context(), credential)
		if err != nil {
			logger.Debug("authentication failed",
				observability.Error(err),
				observability.String("client_ip", c.ClientIP()),
				observability.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid credentials",
			})
			return
		}

		ctx := identity.ContextWithPrincipal(c.Request.Context(), principal)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// ExtractBearerToken extracts a bearer token from the Authorization
// header. The scheme match is case-insensitive.
func ExtractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}

	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(auth[len(prefix):]), true
}
